package contracts

// Bounds enforced at evidence intake. Violations are 400s, never retried.
const (
	MaxCaptures = 25
	MaxSupports = 50
	MaxClaims   = 50
)

// SupportType discriminates the two support shapes.
type SupportType string

const (
	SupportURLCapture  SupportType = "url_capture"
	SupportTextSnippet SupportType = "text_snippet"
)

// Capture is a captured source, typically a URL the user or the intake
// extractor surfaced.
type Capture struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"` // url | file | note
	URL        string            `json:"url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CapturedAt string            `json:"capturedAt,omitempty"` // ISO-8601
	Source     string            `json:"source,omitempty"`     // user_provided | auto
}

// Support backs a claim with either a capture reference or inline text.
type Support struct {
	ID        string      `json:"id"`
	Type      SupportType `json:"type"`
	CaptureID string      `json:"captureId,omitempty"`
	Text      string      `json:"text,omitempty"`
	CreatedAt string      `json:"createdAt"` // ISO-8601
}

// EvidenceClaim is a user-asserted claim tied to supports.
type EvidenceClaim struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	SupportIDs []string `json:"supportIds"`
	CreatedAt  string   `json:"createdAt"` // ISO-8601
}

// Evidence is the user-submitted evidence bundle on a packet.
type Evidence struct {
	Captures []Capture       `json:"captures,omitempty"`
	Supports []Support       `json:"supports,omitempty"`
	Claims   []EvidenceClaim `json:"claims,omitempty"`
}

// EvidenceSummary is the compact counts surface returned to clients.
type EvidenceSummary struct {
	Captures     int `json:"captures"`
	Supports     int `json:"supports"`
	Claims       int `json:"claims"`
	AutoCaptures int `json:"autoCaptures"`
}

// PackSpan is an addressable excerpt inside a pack item.
type PackSpan struct {
	SpanID string `json:"spanId"`
	Text   string `json:"text"`
}

// PackItem is one evidence item inside a pack.
type PackItem struct {
	EvidenceID  string     `json:"evidenceId"`
	Kind        string     `json:"kind"`
	Spans       []PackSpan `json:"spans,omitempty"`
	ExcerptText string     `json:"excerptText,omitempty"`
}

// EvidencePack is the allowed-evidence set the output gates bind claims
// against. EvidenceIDs are unique per pack; spanIDs unique per item.
type EvidencePack struct {
	PackID string     `json:"packId"`
	Items  []PackItem `json:"items"`
}

// Item returns the pack item with the given evidence id, or nil.
func (p *EvidencePack) Item(evidenceID string) *PackItem {
	if p == nil {
		return nil
	}
	for i := range p.Items {
		if p.Items[i].EvidenceID == evidenceID {
			return &p.Items[i]
		}
	}
	return nil
}

// HasSpan reports whether the item contains the span id.
func (it *PackItem) HasSpan(spanID string) bool {
	for _, s := range it.Spans {
		if s.SpanID == spanID {
			return true
		}
	}
	return false
}
