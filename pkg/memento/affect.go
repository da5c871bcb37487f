package memento

import (
	"time"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// RollupFunc maps the affect history (newest-last) to the rollup. The
// exact rule is an injected dependency; DefaultRollup is the in-tree
// policy.
type RollupFunc func(points []contracts.AffectPoint, now time.Time) *contracts.AffectRollup

// BuildAffectPoint converts the model's affect signal into a history
// point. A neutral label produces no mood signal and returns nil.
func BuildAffectPoint(signal *contracts.AffectSignal, endMessageID string, now time.Time) *contracts.AffectPoint {
	if signal == nil || signal.Label == "" || signal.Label == "neutral" {
		return nil
	}
	intensity := signal.Intensity
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	return &contracts.AffectPoint{
		EndMessageID: endMessageID,
		Label:        signal.Label,
		Intensity:    intensity,
		Confidence:   confidenceBucket(signal.Confidence),
		Source:       "model",
		Ts:           now,
	}
}

func confidenceBucket(c float64) string {
	switch {
	case c >= 0.67:
		return "high"
	case c >= 0.34:
		return "med"
	default:
		return "low"
	}
}

// IntensityBucket maps a clamped intensity to low/med/high.
func IntensityBucket(intensity float64) string {
	switch {
	case intensity >= 0.66:
		return "high"
	case intensity >= 0.33:
		return "med"
	default:
		return "low"
	}
}

// DefaultRollup derives the phase from the two newest points: rising when
// intensity climbed, downshift when it dropped from a high reading, peak
// while it stays high, settled otherwise.
func DefaultRollup(points []contracts.AffectPoint, now time.Time) *contracts.AffectRollup {
	if len(points) == 0 {
		return nil
	}
	newest := points[len(points)-1]
	phase := "settled"
	switch {
	case newest.Intensity >= 0.66:
		phase = "peak"
	case len(points) > 1 && newest.Intensity > points[len(points)-2].Intensity:
		phase = "rising"
	case len(points) > 1 && newest.Intensity < points[len(points)-2].Intensity && points[len(points)-2].Intensity >= 0.5:
		phase = "downshift"
	}
	return &contracts.AffectRollup{
		Phase:           phase,
		IntensityBucket: IntensityBucket(newest.Intensity),
		UpdatedAt:       now,
	}
}
