package memento

import (
	"regexp"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

var decisionLockIntent = regexp.MustCompile(`\b(decide|decided|lock|choose|should i)\b`)

// fallbackDecisionLine finds an explicit recommendation in assistant text.
var fallbackDecisionLine = regexp.MustCompile(`(?m)^\s*(?:Recommendation|Decision|Choose)\s*:\s*(.+)$`)

// MergeShape produces the turn's merged shape. Start from the model shape
// unless frozen, inherit decisions and next from the previous shape when
// the model left them empty, and extract a fallback decision line when the
// user showed decision-lock intent but no decision landed.
func MergeShape(model *contracts.MementoShape, prev *contracts.MementoShape, frozen bool, userMessage, assistantText string) *contracts.MementoShape {
	var merged *contracts.MementoShape
	switch {
	case model != nil && !frozen:
		merged = model.Clone()
	case prev != nil:
		merged = prev.Clone()
	default:
		merged = contracts.DefaultShape()
	}
	if merged.Arc == "" {
		merged.Arc = contracts.DefaultMementoArc
	}

	if prev != nil {
		if len(merged.Decisions) == 0 && len(prev.Decisions) > 0 {
			merged.Decisions = append([]string(nil), prev.Decisions...)
		}
		if len(merged.Next) == 0 && len(prev.Next) > 0 {
			merged.Next = append([]string(nil), prev.Next...)
		}
	}

	if len(merged.Decisions) == 0 && decisionLockIntent.MatchString(strings.ToLower(userMessage)) {
		if m := fallbackDecisionLine.FindStringSubmatch(assistantText); m != nil {
			merged.Decisions = appendCapped(merged.Decisions, strings.TrimSpace(m[1]))
		}
	}

	merged.Active = capList(merged.Active)
	merged.Parked = capList(merged.Parked)
	merged.Decisions = capList(merged.Decisions)
	merged.Next = capList(merged.Next)
	return merged
}

// ShapeChanged reports a non-trivial difference between two shapes.
func ShapeChanged(a, b *contracts.MementoShape) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	if a == nil {
		return false
	}
	return a.Arc != b.Arc ||
		!equalList(a.Active, b.Active) ||
		!equalList(a.Parked, b.Parked) ||
		!equalList(a.Decisions, b.Decisions) ||
		!equalList(a.Next, b.Next)
}

// appendCapped appends keeping the newest MementoListCap entries,
// newest-last.
func appendCapped(list []string, item string) []string {
	list = append(list, item)
	return capList(list)
}

func capList(list []string) []string {
	if len(list) > contracts.MementoListCap {
		list = list[len(list)-contracts.MementoListCap:]
	}
	return list
}

func equalList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
