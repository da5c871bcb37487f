package contracts

import "fmt"

// Gate failure error codes (HTTP 422, never retried, stub text persisted).
const (
	ErrOutputContractFailed         = "output_contract_failed"
	ErrEvidenceBindingFailed        = "evidence_binding_failed"
	ErrClaimsWithoutEvidence        = "claims_without_evidence"
	ErrEvidenceBudgetExceeded       = "evidence_budget_exceeded"
	ErrDriverBlockEnforcementFailed = "driver_block_enforcement_failed"
)

// Envelope parse failure reasons (suffixes of output_contract_failed).
const (
	ParseInvalidJSON     = "invalid_json"
	ParseSchemaInvalid   = "schema_invalid"
	ParsePayloadTooLarge = "payload_too_large"
)

// Provider and config error codes.
const (
	ErrProviderInvalidRequest         = "provider_invalid_request"
	ErrProviderUpstreamFailed         = "provider_upstream_failed"
	ErrProviderFailed                 = "provider_failed"
	ErrOpenAIAPIKeyMissing            = "openai_api_key_missing"
	ErrOpenAIModelMissing             = "openai_model_missing"
	ErrEvidenceProviderContractFailed = "evidence_provider_contract_failed"
	ErrEvidenceProviderFailed         = "evidence_provider_failed"
	ErrSimulatedFailure               = "simulated_failure"
)

// SSE failure categories emitted on assistant_failed events.
const (
	SSEInternalError         = "INTERNAL_ERROR"
	SSEOutputEnvelopeInvalid = "OUTPUT_ENVELOPE_INVALID"
	SSEGateRegenExhausted    = "GATE_REGEN_EXHAUSTED"
	SSEProviderError         = "PROVIDER_ERROR"
	SSEProviderTimeout       = "PROVIDER_TIMEOUT"
)

// StubAssistantText is persisted as the chat result whenever a gate fails,
// so clients always have something deterministic to render.
const StubAssistantText = "I hit a safety check while preparing that reply. Nothing was lost; please try again."

// EvidenceValidationError is a fail-closed intake rejection (HTTP 400).
type EvidenceValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *EvidenceValidationError) Error() string {
	return fmt.Sprintf("evidence validation failed: %s: %s", e.Code, e.Message)
}

// GateError is a fail-closed gate rejection (HTTP 422). Reason carries the
// machine-readable sub-cause, e.g. "invalid_json" or "max_claims".
type GateError struct {
	Code     string         `json:"error"`
	Reason   string         `json:"reason,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"-"`
}

func (e *GateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s:%s", e.Code, e.Reason)
	}
	return e.Code
}

// ProviderError is a typed LLM provider failure. Timeout failures carry an
// optional client backoff hint.
type ProviderError struct {
	Code         string `json:"error"`
	Detail       string `json:"detail,omitempty"`
	Retryable    bool   `json:"retryable"`
	Timeout      bool   `json:"timeout,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
	HTTPStatus   int    `json:"-"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Detail)
}

// ConfigError is a deployment misconfiguration (HTTP 500, not retryable).
type ConfigError struct {
	Code   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error %s: %s", e.Code, e.Detail)
}
