package contracts

// OutputEnvelope is the typed model-output contract. Ingress is
// permissive-then-normalized (aliases mapped, unknown meta keys dropped);
// egress is strict: only allowlisted meta keys are ever emitted.
type OutputEnvelope struct {
	AssistantText string        `json:"assistant_text"`
	Meta          *EnvelopeMeta `json:"meta,omitempty"`
}

// MetaVersionV1 is stamped on every egress envelope that carries meta.
const MetaVersionV1 = "v1"

// EnvelopeMeta is the allowlisted meta mapping, reified as a tagged
// structure. The allowlist below is the single source of truth for which
// keys survive normalization.
type EnvelopeMeta struct {
	MetaVersion        string             `json:"meta_version,omitempty"`
	Claims             []MetaClaim        `json:"claims,omitempty"`
	UsedEvidenceIDs    []string           `json:"used_evidence_ids,omitempty"`
	EvidencePackID     string             `json:"evidence_pack_id,omitempty"`
	CaptureSuggestion  *CaptureSuggestion `json:"capture_suggestion,omitempty"`
	Shape              *MementoShape      `json:"shape,omitempty"`
	AffectSignal       *AffectSignal      `json:"affect_signal,omitempty"`
	LibrarianGate      *LibrarianGate     `json:"librarian_gate,omitempty"`
	Lattice            map[string]any     `json:"lattice,omitempty"`
	JournalOffer       *JournalOffer      `json:"journalOffer,omitempty"`
	NotificationPolicy string             `json:"notification_policy,omitempty"`
	DisplayHint        string             `json:"display_hint,omitempty"`
	GhostKind          string             `json:"ghost_kind,omitempty"`
	GhostTitle         string             `json:"ghost_title,omitempty"`
	GhostBody          string             `json:"ghost_body,omitempty"`
	GhostTags          []string           `json:"ghost_tags,omitempty"`
}

// MetaKeyAllowlist enumerates every meta key permitted at egress.
var MetaKeyAllowlist = []string{
	"meta_version",
	"claims",
	"used_evidence_ids",
	"evidence_pack_id",
	"capture_suggestion",
	"shape",
	"affect_signal",
	"librarian_gate",
	"lattice",
	"journalOffer",
	"notification_policy",
	"display_hint",
	"ghost_kind",
	"ghost_title",
	"ghost_body",
	"ghost_tags",
}

var metaKeySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(MetaKeyAllowlist))
	for _, k := range MetaKeyAllowlist {
		m[k] = struct{}{}
	}
	return m
}()

// IsAllowedMetaKey reports whether k survives egress normalization.
func IsAllowedMetaKey(k string) bool {
	_, ok := metaKeySet[k]
	return ok
}

// GhostKind values after alias normalization.
const (
	GhostMemoryArtifact = "memory_artifact"
	GhostJournalMoment  = "journal_moment"
	GhostActionProposal = "action_proposal"
)

// DisplayHintGhostCard marks a non-conversational envelope shape; it is the
// trigger for the librarian gate.
const DisplayHintGhostCard = "ghost_card"

// MetaClaim is an assistant-asserted claim bound to pack evidence.
type MetaClaim struct {
	ClaimID      string        `json:"claim_id"`
	ClaimText    string        `json:"claim_text"`
	EvidenceRefs []EvidenceRef `json:"evidence_refs"`
}

// EvidenceRef points at a pack item, optionally at a span within it.
type EvidenceRef struct {
	EvidenceID string `json:"evidence_id"`
	SpanID     string `json:"span_id,omitempty"`
}

// LibrarianGate is the librarian verdict written back into meta.
type LibrarianGate struct {
	Version           string   `json:"version"`
	PrunedRefs        int      `json:"pruned_refs"`
	UnsupportedClaims int      `json:"unsupported_claims"`
	SupportScore      float64  `json:"support_score"`
	Verdict           string   `json:"verdict"` // pass | prune | flag
	ReasonCodes       []string `json:"reasonCodes,omitempty"`
}

// CaptureSuggestion proposes persisting something the assistant noticed.
// calendar_event carries suggested_start_at and never suggested_date;
// journal_entry and reminder carry neither.
type CaptureSuggestion struct {
	SuggestionID     string `json:"suggestion_id"`
	Kind             string `json:"kind"` // calendar_event | journal_entry | reminder
	Title            string `json:"title,omitempty"`
	SuggestedStartAt string `json:"suggested_start_at,omitempty"`
	SuggestedDate    string `json:"suggested_date,omitempty"`
}

// AffectSignal is the model's read of the user's affect this turn.
type AffectSignal struct {
	Label          string   `json:"label"`
	Intensity      float64  `json:"intensity"`
	Confidence     float64  `json:"confidence"`
	Kinds          []string `json:"kinds,omitempty"` // breakpoint signal kinds
	SummaryChanged bool     `json:"summary_changed,omitempty"`
	EndMessageID   string   `json:"end_message_id,omitempty"`
}

// JournalOffer is the optional journaling offer stamped into meta.
type JournalOffer struct {
	OfferEligible bool   `json:"offerEligible"`
	MomentType    string `json:"momentType,omitempty"` // vent | insight | gratitude | decision
	Confidence    string `json:"confidence,omitempty"`
}
