// Package memento maintains the per-thread state machine: breakpoint
// decisions, peak-freeze, shape merging, affect rollup, and the
// persistence predicate that keeps trivial turns out of the store.
package memento

import (
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Decision is the breakpoint outcome for a turn.
type Decision string

const (
	DecisionMust   Decision = "must"
	DecisionShould Decision = "should"
	DecisionSkip   Decision = "skip"
)

// Signal kinds that force or suggest a breakpoint.
var (
	mustKinds   = map[string]bool{"decision_made": true, "scope_changed": true, "pivot": true, "answer_provided": true}
	shouldKinds = map[string]bool{"open_loop_created": true, "open_loop_resolved": true, "risk_or_conflict": true}
)

// ackTokens is the fixed acknowledgement vocabulary. A message whose
// tokens all fall in this set is ack-only and skips the breakpoint.
var ackTokens = map[string]bool{
	"ok": true, "okay": true, "k": true, "kk": true, "thanks": true,
	"thank": true, "thx": true, "ty": true, "you": true, "yes": true,
	"yep": true, "yeah": true, "sure": true, "cool": true, "nice": true,
	"great": true, "got": true, "it": true, "sounds": true, "good": true,
	"alright": true, "right": true, "will": true, "do": true,
}

// DecideBreakpoint derives the breakpoint decision from the user message
// and the model's affect signal kinds.
func DecideBreakpoint(message string, signal *contracts.AffectSignal) Decision {
	var kinds map[string]bool
	summaryChanged := false
	if signal != nil {
		summaryChanged = signal.SummaryChanged
		kinds = make(map[string]bool, len(signal.Kinds))
		for _, k := range signal.Kinds {
			kinds[k] = true
		}
	}

	if summaryChanged || anyKind(kinds, mustKinds) {
		return DecisionMust
	}
	if anyKind(kinds, shouldKinds) {
		return DecisionShould
	}
	if kinds["ack_only"] || ackOnly(message) {
		return DecisionSkip
	}
	return DecisionShould
}

func anyKind(kinds, set map[string]bool) bool {
	for k := range kinds {
		if set[k] {
			return true
		}
	}
	return false
}

func ackOnly(message string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !ackTokens[t] {
			return false
		}
	}
	return true
}

// PeakFrozen reports whether the model's shape must be ignored this turn:
// the previous rollup sits at peak (or high intensity) and the breakpoint
// decision is not a must.
func PeakFrozen(prev *contracts.ThreadMementoLatest, decision Decision) bool {
	if prev == nil || prev.Affect.Rollup == nil {
		return false
	}
	if decision == DecisionMust {
		return false
	}
	r := prev.Affect.Rollup
	return r.Phase == "peak" || r.IntensityBucket == "high"
}
