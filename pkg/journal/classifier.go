// Package journal classifies completed turns for a journal-moment offer.
// The rule table is deterministic; ineligibility always carries a reason
// code so the decision stays auditable after the fact.
package journal

import (
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/memento"
)

// Input is everything the classifier looks at for one turn.
type Input struct {
	Signal             *contracts.AffectSignal
	Rollup             *contracts.AffectRollup
	Risk               string
	Mode               string
	EndMessageID       string
	AvoidPeakOverwhelm bool
	OnCooldown         bool
}

// Classify applies the rule table. Only a non-neutral mood label at low
// risk is eligible at all; each label then gates on the rollup phase.
func Classify(in Input) *contracts.JournalOfferRecord {
	rec := &contracts.JournalOfferRecord{
		Risk: in.Risk,
		Mode: in.Mode,
	}
	if in.Signal == nil || in.Signal.Label == "" {
		rec.ReasonCodes = []string{contracts.JournalReasonNoAffectSignal}
		return rec
	}
	rec.Label = in.Signal.Label
	rec.IntensityBucket = memento.IntensityBucket(in.Signal.Intensity)
	if in.Rollup != nil {
		rec.Phase = in.Rollup.Phase
	}

	if in.Signal.Label == "neutral" {
		rec.ReasonCodes = []string{contracts.JournalReasonLabelNeutral}
		return rec
	}
	if in.Risk != "low" {
		rec.ReasonCodes = []string{contracts.JournalReasonRiskNotLow}
		return rec
	}
	if in.OnCooldown {
		rec.ReasonCodes = []string{contracts.JournalReasonCooldown}
		return rec
	}

	momentType, confidence, ok, reason := classifyLabel(in, rec.Phase)
	if !ok {
		rec.ReasonCodes = []string{reason}
		return rec
	}

	rec.OfferEligible = true
	rec.MomentType = momentType
	rec.Confidence = confidence
	if in.EndMessageID != "" {
		rec.EvidenceSpan = fmt.Sprintf("msg:%s", in.EndMessageID)
	}
	return rec
}

// classifyLabel maps (label, phase) to a moment type. Curiosity never
// produces an offer.
func classifyLabel(in Input, phase string) (momentType, confidence string, ok bool, reason string) {
	switch in.Signal.Label {
	case "overwhelm":
		if phase == "settled" && !in.AvoidPeakOverwhelm {
			return "vent", "", true, ""
		}
		return "", "", false, contracts.JournalReasonPhaseBlocked
	case "insight":
		if in.Signal.Intensity > 0.7 {
			return "insight", "high", true, ""
		}
		return "", "", false, contracts.JournalReasonIntensityTooLow
	case "gratitude":
		if phase == "downshift" || phase == "settled" {
			return "gratitude", "", true, ""
		}
		return "", "", false, contracts.JournalReasonPhaseBlocked
	case "resolve":
		if phase == "settled" {
			return "decision", "", true, ""
		}
		return "", "", false, contracts.JournalReasonPhaseBlocked
	case "curiosity":
		return "", "", false, contracts.JournalReasonPhaseBlocked
	default:
		return "", "", false, contracts.JournalReasonOther
	}
}

// Offer converts an eligible record into the envelope's journal offer.
// Returns nil when the record is ineligible.
func Offer(rec *contracts.JournalOfferRecord) *contracts.JournalOffer {
	if rec == nil || !rec.OfferEligible {
		return nil
	}
	return &contracts.JournalOffer{
		OfferEligible: true,
		MomentType:    rec.MomentType,
		Confidence:    rec.Confidence,
	}
}
