package contracts

import "time"

// Caps on the memento list fields and affect history.
const (
	MementoListCap    = 5
	AffectPointsCap   = 5
	DefaultMementoArc = "support"
)

// MementoShape is the structured per-thread shape: arc plus four ordered
// lists, newest-last, each capped at MementoListCap.
type MementoShape struct {
	Arc       string   `json:"arc"`
	Active    []string `json:"active"`
	Parked    []string `json:"parked"`
	Decisions []string `json:"decisions"`
	Next      []string `json:"next"`
}

// Clone returns a deep copy. Mutating the copy never aliases the source.
func (s *MementoShape) Clone() *MementoShape {
	if s == nil {
		return nil
	}
	out := &MementoShape{Arc: s.Arc}
	out.Active = append([]string(nil), s.Active...)
	out.Parked = append([]string(nil), s.Parked...)
	out.Decisions = append([]string(nil), s.Decisions...)
	out.Next = append([]string(nil), s.Next...)
	return out
}

// DefaultShape is the merge starting point when neither the model nor the
// previous turn supplied one.
func DefaultShape() *MementoShape {
	return &MementoShape{
		Arc:       DefaultMementoArc,
		Active:    []string{},
		Parked:    []string{},
		Decisions: []string{},
		Next:      []string{},
	}
}

// AffectPoint is one observed affect sample, newest-last in the history.
type AffectPoint struct {
	EndMessageID string    `json:"endMessageId,omitempty"`
	Label        string    `json:"label"`
	Intensity    float64   `json:"intensity"`
	Confidence   string    `json:"confidence"` // low | med | high
	Source       string    `json:"source"`     // model
	Ts           time.Time `json:"ts"`
}

// AffectRollup is the derived summary over the affect history. The rule
// mapping points to phase/bucket is injected (see memento.RollupFunc).
type AffectRollup struct {
	Phase           string    `json:"phase"` // rising | peak | downshift | settled
	IntensityBucket string    `json:"intensityBucket"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// AffectState is the affect portion of the memento.
type AffectState struct {
	Points []AffectPoint `json:"points"`
	Rollup *AffectRollup `json:"rollup,omitempty"`
}

// ThreadMementoLatest is the per-thread state summarizing arc, topics,
// decisions, next steps, and affect. First seen on request, mutated once
// per completed turn, destroyed only by thread deletion.
type ThreadMementoLatest struct {
	MementoID string      `json:"mementoId"`
	ThreadID  string      `json:"threadId"`
	CreatedTs time.Time   `json:"createdTs"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Arc       string      `json:"arc"`
	Active    []string    `json:"active"`
	Parked    []string    `json:"parked"`
	Decisions []string    `json:"decisions"`
	Next      []string    `json:"next"`
	Affect    AffectState `json:"affect"`
}

// Shape extracts the structured shape view of the memento.
func (m *ThreadMementoLatest) Shape() *MementoShape {
	if m == nil {
		return nil
	}
	return &MementoShape{
		Arc:       m.Arc,
		Active:    append([]string(nil), m.Active...),
		Parked:    append([]string(nil), m.Parked...),
		Decisions: append([]string(nil), m.Decisions...),
		Next:      append([]string(nil), m.Next...),
	}
}

// JournalOfferRecord is the full classifier outcome, persisted alongside
// the turn. Either EvidenceSpan or ReasonCodes is set, never both.
type JournalOfferRecord struct {
	OfferEligible   bool     `json:"offerEligible"`
	Phase           string   `json:"phase,omitempty"`
	Risk            string   `json:"risk,omitempty"`
	Label           string   `json:"label,omitempty"`
	IntensityBucket string   `json:"intensityBucket,omitempty"`
	MomentType      string   `json:"momentType,omitempty"`
	Confidence      string   `json:"confidence,omitempty"`
	Mode            string   `json:"mode,omitempty"`
	EvidenceSpan    string   `json:"evidenceSpan,omitempty"`
	ReasonCodes     []string `json:"reasonCodes,omitempty"`
}

// Journal offer ineligibility reason codes.
const (
	JournalReasonNoAffectSignal  = "no_affect_signal"
	JournalReasonLabelNeutral    = "label_neutral"
	JournalReasonRiskNotLow      = "risk_not_low"
	JournalReasonPhaseBlocked    = "phase_blocked"
	JournalReasonIntensityTooLow = "intensity_too_low"
	JournalReasonCooldown        = "cooldown"
	JournalReasonOther           = "other"
)
