// Package evidence resolves the allowed-evidence pack for a transmission
// and runs the output gates that bind assistant claims to it: the
// librarian (ghost-card reference cleaner), the binding gate, and the
// byte-budget gate. All gates are fail-closed.
package evidence

import (
	"context"
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Provider decision reasons.
const (
	DecisionForced        = "forced"
	DecisionForcedIgnored = "forced_ignored_prod"
	DecisionHasEvidence   = "has_evidence"
	DecisionEnvDefault    = "env_default"
	DecisionNone          = "none"
)

// Decision is the pure provider-allowance outcome.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Decide determines whether the evidence provider runs. The force flags
// XOR against production: forcing in production is ignored, and the
// decision records that explicitly.
func Decide(requestForce, envForce, isProd bool, ev *contracts.Evidence) Decision {
	force := requestForce || envForce
	hasEvidence := ev != nil && (len(ev.Captures) > 0 || len(ev.Supports) > 0 || len(ev.Claims) > 0)

	if force != isProd { // XOR allow
		if force {
			return Decision{Allowed: true, Reason: DecisionForced}
		}
		return Decision{Allowed: true, Reason: DecisionEnvDefault}
	}
	if hasEvidence {
		return Decision{Allowed: true, Reason: DecisionHasEvidence}
	}
	if force && isProd {
		return Decision{Allowed: false, Reason: DecisionForcedIgnored}
	}
	return Decision{Allowed: false, Reason: DecisionNone}
}

// PackProvider resolves the evidence pack. Failures map to the evidence
// provider error taxonomy (HTTP 500, retryable).
type PackProvider interface {
	ResolvePack(ctx context.Context, transmissionID string, ev *contracts.Evidence) (*contracts.EvidencePack, error)
}

// LocalProvider builds the pack deterministically from intake evidence.
type LocalProvider struct{}

// ResolvePack converts captures and text snippets into pack items. Every
// capture becomes an item keyed by its capture id; every text snippet
// becomes an item with a single addressable span.
func (LocalProvider) ResolvePack(_ context.Context, transmissionID string, ev *contracts.Evidence) (*contracts.EvidencePack, error) {
	if ev == nil {
		return nil, fmt.Errorf("%s: nil evidence", contracts.ErrEvidenceProviderContractFailed)
	}
	pack := &contracts.EvidencePack{PackID: "pack_" + transmissionID}
	for _, c := range ev.Captures {
		pack.Items = append(pack.Items, contracts.PackItem{
			EvidenceID:  c.ID,
			Kind:        c.Kind,
			ExcerptText: c.URL,
		})
	}
	for _, s := range ev.Supports {
		if s.Type != contracts.SupportTextSnippet {
			continue
		}
		pack.Items = append(pack.Items, contracts.PackItem{
			EvidenceID: s.ID,
			Kind:       string(contracts.SupportTextSnippet),
			Spans: []contracts.PackSpan{
				{SpanID: s.ID + ":0", Text: s.Text},
			},
		})
	}
	return pack, nil
}
