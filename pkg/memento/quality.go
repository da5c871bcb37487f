package memento

import (
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Quality is the post-turn evaluation of what the model returned for the
// thread state. Any true issue flag makes the turn a candidate for a
// single corrective regeneration.
type Quality struct {
	ShapePresent        bool `json:"shapePresent"`
	ShapeDecisionsEmpty bool `json:"shapeDecisionsEmpty"`
	AffectSignalPresent bool `json:"affectSignalPresent"`
}

// NeedsRepair reports whether any quality issue applies.
func (q Quality) NeedsRepair() bool {
	return !q.ShapePresent || q.ShapeDecisionsEmpty || !q.AffectSignalPresent
}

// Issues lists the failing checks for trace metadata.
func (q Quality) Issues() []string {
	var out []string
	if !q.ShapePresent {
		out = append(out, "shape_missing")
	}
	if q.ShapeDecisionsEmpty {
		out = append(out, "shape_decisions_empty")
	}
	if !q.AffectSignalPresent {
		out = append(out, "affect_signal_missing")
	}
	return out
}

// EvaluateQuality inspects the model's returned meta. Decisions only count
// as empty when the user showed decision-lock intent this turn.
func EvaluateQuality(shape *contracts.MementoShape, signal *contracts.AffectSignal, userMessage string) Quality {
	q := Quality{
		ShapePresent:        shape != nil,
		AffectSignalPresent: signal != nil && signal.Label != "",
	}
	if shape != nil && len(shape.Decisions) == 0 &&
		decisionLockIntent.MatchString(strings.ToLower(userMessage)) {
		q.ShapeDecisionsEmpty = true
	}
	return q
}

// RepairPreamble renders the corrective instruction for the single
// regeneration attempt driven by quality issues.
func RepairPreamble(q Quality) string {
	var sb strings.Builder
	sb.WriteString("Your previous reply omitted required thread-state metadata. Regenerate the reply and include in meta:\n")
	if !q.ShapePresent {
		sb.WriteString("- a `shape` object with arc, active, parked, decisions, and next lists\n")
	}
	if q.ShapeDecisionsEmpty {
		sb.WriteString("- at least one entry in `shape.decisions` reflecting the decision discussed\n")
	}
	if !q.AffectSignalPresent {
		sb.WriteString("- an `affect_signal` object with label, intensity, and confidence\n")
	}
	return sb.String()
}
