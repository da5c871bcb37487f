// Package envelope parses raw model output into the typed output envelope
// and enforces the envelope contract: size cap, strict top level, meta key
// allowlist, and ghost-card subtyping. Fail-closed: any blocking issue
// yields a typed parse failure, never a partial envelope.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// MaxEnvelopeBytes is the hard cap on raw model output. Exceeding it is
// payload_too_large and is never retried.
const MaxEnvelopeBytes = 64 * 1024

// Issue is one summarized schema violation.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseFailure is a typed envelope rejection.
type ParseFailure struct {
	Reason string  `json:"reason"` // invalid_json | schema_invalid | payload_too_large
	Issues []Issue `json:"issues,omitempty"`
}

func (f *ParseFailure) Error() string {
	if f.Reason == contracts.ParseSchemaInvalid {
		return fmt.Sprintf("%s:%s:issues=%d", contracts.ErrOutputContractFailed, f.Reason, len(f.Issues))
	}
	return fmt.Sprintf("%s:%s", contracts.ErrOutputContractFailed, f.Reason)
}

// Result is a successful parse plus any non-blocking diagnostics.
type Result struct {
	Envelope *contracts.OutputEnvelope
	// FullSchemaWarning is set when the full schema failed but ghost keys
	// were absent, so the failure is advisory.
	FullSchemaWarning []Issue
	DroppedMetaKeys   []string
}

// ghostKeys trigger blocking full-schema validation when present in meta.
var ghostKeys = []string{"ghost_kind", "ghost_title", "ghost_body", "ghost_tags"}

// ghostKindAliases map legacy ghost_type values to ghost_kind values.
var ghostKindAliases = map[string]string{
	"memory":  contracts.GhostMemoryArtifact,
	"journal": contracts.GhostJournalMoment,
	"action":  contracts.GhostActionProposal,
}

// Parse validates raw model output for the given attempt (0 or 1) and
// returns the typed envelope or a typed failure.
func Parse(raw []byte, attempt int) (*Result, *ParseFailure) {
	_ = attempt // both attempts share the contract; the caller decides retry policy

	if len(raw) > MaxEnvelopeBytes {
		return nil, &ParseFailure{Reason: contracts.ParsePayloadTooLarge}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseFailure{Reason: contracts.ParseInvalidJSON}
	}

	dropped := normalizeMeta(doc)

	if err := compiledV0.Validate(doc); err != nil {
		return nil, &ParseFailure{
			Reason: contracts.ParseSchemaInvalid,
			Issues: summarizeIssues(err, 3),
		}
	}

	res := &Result{DroppedMetaKeys: dropped}
	if fullErr := compiledFull.Validate(doc); fullErr != nil {
		if hasGhostKeys(doc) {
			return nil, &ParseFailure{
				Reason: contracts.ParseSchemaInvalid,
				Issues: summarizeIssues(fullErr, 3),
			}
		}
		res.FullSchemaWarning = summarizeIssues(fullErr, 3)
	}

	// Round-trip into the typed structure. The normalized document only
	// contains allowlisted keys, so this cannot lose information.
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, &ParseFailure{Reason: contracts.ParseInvalidJSON}
	}
	var env contracts.OutputEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, &ParseFailure{
			Reason: contracts.ParseSchemaInvalid,
			Issues: []Issue{{Path: "", Code: "decode", Message: err.Error()}},
		}
	}
	res.Envelope = &env
	return res, nil
}

// normalizeMeta applies ingress alias mapping and drops meta keys outside
// the allowlist. Returns the dropped key names for diagnostics.
func normalizeMeta(doc map[string]any) []string {
	metaAny, ok := doc["meta"]
	if !ok {
		return nil
	}
	meta, ok := metaAny.(map[string]any)
	if !ok {
		return nil
	}

	// metaVersion -> meta_version
	if v, ok := meta["metaVersion"]; ok {
		if _, exists := meta["meta_version"]; !exists {
			meta["meta_version"] = v
		}
		delete(meta, "metaVersion")
	}

	// ghost_type -> ghost_kind via the alias table.
	if v, ok := meta["ghost_type"]; ok {
		if s, isStr := v.(string); isStr {
			if mapped, known := ghostKindAliases[s]; known {
				if _, exists := meta["ghost_kind"]; !exists {
					meta["ghost_kind"] = mapped
				}
			}
		}
		delete(meta, "ghost_type")
	}

	// Default meta_version when meta is present.
	if _, ok := meta["meta_version"]; !ok {
		meta["meta_version"] = contracts.MetaVersionV1
	}

	var dropped []string
	for k := range meta {
		if !contracts.IsAllowedMetaKey(k) {
			dropped = append(dropped, k)
			delete(meta, k)
		}
	}
	return dropped
}

func hasGhostKeys(doc map[string]any) bool {
	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		return false
	}
	for _, k := range ghostKeys {
		if _, present := meta[k]; present {
			return true
		}
	}
	return false
}

// ValidateCaptureSuggestion enforces the per-kind field rules outside the
// schema path, for envelopes assembled in code.
func ValidateCaptureSuggestion(cs *contracts.CaptureSuggestion) error {
	if cs == nil {
		return nil
	}
	switch cs.Kind {
	case "calendar_event":
		if cs.SuggestedStartAt == "" {
			return fmt.Errorf("capture_suggestion: calendar_event requires suggested_start_at")
		}
		if cs.SuggestedDate != "" {
			return fmt.Errorf("capture_suggestion: calendar_event must not carry suggested_date")
		}
	case "journal_entry", "reminder":
		if cs.SuggestedStartAt != "" {
			return fmt.Errorf("capture_suggestion: %s must not carry suggested_start_at", cs.Kind)
		}
	}
	return nil
}
