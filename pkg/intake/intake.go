// Package intake normalizes user-submitted evidence before any gate runs.
// Deterministic and fail-closed: URL auto-captures are merged with client
// captures, bounds are enforced, and every reference must resolve. A
// violation is a validation error surfaced as HTTP 400, never retried.
package intake

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// URLExtractor finds URLs in a user message. Extraction itself is an
// external concern; the default lives in urls.go.
type URLExtractor interface {
	Extract(message string) []string
}

// Result is the normalized evidence bundle.
type Result struct {
	Evidence     *contracts.Evidence
	Summary      contracts.EvidenceSummary
	AutoCaptures int
	Warnings     []string
}

// Processor runs evidence intake. The clock is injectable for
// deterministic tests.
type Processor struct {
	extractor URLExtractor
	clock     func() time.Time
	newID     func() string
}

// NewProcessor creates an intake processor with the default extractor.
func NewProcessor(extractor URLExtractor) *Processor {
	if extractor == nil {
		extractor = NewRegexExtractor()
	}
	return &Processor{
		extractor: extractor,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock overrides the clock for deterministic testing.
func (p *Processor) WithClock(clock func() time.Time) *Processor {
	p.clock = clock
	return p
}

// Process normalizes and validates evidence for one packet.
func (p *Processor) Process(message string, client *contracts.Evidence) (*Result, *contracts.EvidenceValidationError) {
	ev := &contracts.Evidence{}
	if client != nil {
		ev.Captures = append(ev.Captures, client.Captures...)
		ev.Supports = append(ev.Supports, client.Supports...)
		ev.Claims = append(ev.Claims, client.Claims...)
	}

	// Auto-capture URLs not already present in the client set.
	known := make(map[string]bool, len(ev.Captures))
	for _, c := range ev.Captures {
		if c.URL != "" {
			known[c.URL] = true
		}
	}
	auto := 0
	for _, u := range p.extractor.Extract(message) {
		if known[u] {
			continue
		}
		known[u] = true
		ev.Captures = append(ev.Captures, contracts.Capture{
			ID:         p.newID(),
			Kind:       "url",
			URL:        u,
			CapturedAt: p.clock().UTC().Format(time.RFC3339),
			Source:     "user_provided",
		})
		auto++
	}

	if err := validate(ev); err != nil {
		return nil, err
	}

	return &Result{
		Evidence:     ev,
		AutoCaptures: auto,
		Summary: contracts.EvidenceSummary{
			Captures:     len(ev.Captures),
			Supports:     len(ev.Supports),
			Claims:       len(ev.Claims),
			AutoCaptures: auto,
		},
	}, nil
}

func validate(ev *contracts.Evidence) *contracts.EvidenceValidationError {
	if len(ev.Captures) > contracts.MaxCaptures {
		return bounds("captures", len(ev.Captures), contracts.MaxCaptures)
	}
	if len(ev.Supports) > contracts.MaxSupports {
		return bounds("supports", len(ev.Supports), contracts.MaxSupports)
	}
	if len(ev.Claims) > contracts.MaxClaims {
		return bounds("claims", len(ev.Claims), contracts.MaxClaims)
	}

	captureIDs := make(map[string]bool, len(ev.Captures))
	for _, c := range ev.Captures {
		captureIDs[c.ID] = true
	}

	supportIDs := make(map[string]bool, len(ev.Supports))
	for _, s := range ev.Supports {
		supportIDs[s.ID] = true
		switch s.Type {
		case contracts.SupportURLCapture:
			if !captureIDs[s.CaptureID] {
				return &contracts.EvidenceValidationError{
					Code:    "unresolved_capture",
					Message: "url_capture support references a missing capture",
					Details: fmt.Sprintf("support %s -> capture %s", s.ID, s.CaptureID),
				}
			}
		case contracts.SupportTextSnippet:
			if s.Text == "" {
				return &contracts.EvidenceValidationError{
					Code:    "empty_snippet",
					Message: "text_snippet support requires non-empty text",
					Details: fmt.Sprintf("support %s", s.ID),
				}
			}
		default:
			return &contracts.EvidenceValidationError{
				Code:    "unknown_support_type",
				Message: fmt.Sprintf("unknown support type %q", s.Type),
				Details: fmt.Sprintf("support %s", s.ID),
			}
		}
		if err := checkTimestamp("support", s.ID, s.CreatedAt); err != nil {
			return err
		}
	}

	for _, c := range ev.Claims {
		for _, sid := range c.SupportIDs {
			if !supportIDs[sid] {
				return &contracts.EvidenceValidationError{
					Code:    "unresolved_support",
					Message: "claim references a missing support",
					Details: fmt.Sprintf("claim %s -> support %s", c.ID, sid),
				}
			}
		}
		if err := checkTimestamp("claim", c.ID, c.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func checkTimestamp(kind, id, ts string) *contracts.EvidenceValidationError {
	if ts == "" {
		return &contracts.EvidenceValidationError{
			Code:    "missing_timestamp",
			Message: fmt.Sprintf("%s requires createdAt", kind),
			Details: fmt.Sprintf("%s %s", kind, id),
		}
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		return &contracts.EvidenceValidationError{
			Code:    "invalid_timestamp",
			Message: fmt.Sprintf("%s createdAt is not ISO-8601", kind),
			Details: fmt.Sprintf("%s %s: %q", kind, id, truncate(ts, 64)),
		}
	}
	return nil
}

func bounds(field string, got, limit int) *contracts.EvidenceValidationError {
	return &contracts.EvidenceValidationError{
		Code:    "bounds_exceeded",
		Message: fmt.Sprintf("%s exceed the limit of %d", field, limit),
		Details: fmt.Sprintf("%s=%d", field, got),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
