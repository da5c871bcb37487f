package orchestrator

import "github.com/SolLabsHQ/solserver-sub002/pkg/contracts"

// sseFailureCode maps an internal failure category to the stream-facing
// code enum. Gate and contract failures group under the two envelope
// codes; provider failures split on timeout.
func sseFailureCode(category string, timeout bool) string {
	switch category {
	case contracts.ErrOutputContractFailed:
		return contracts.SSEOutputEnvelopeInvalid
	case contracts.ErrEvidenceBindingFailed, contracts.ErrClaimsWithoutEvidence,
		contracts.ErrEvidenceBudgetExceeded, contracts.ErrDriverBlockEnforcementFailed:
		return contracts.SSEGateRegenExhausted
	case contracts.ErrProviderInvalidRequest, contracts.ErrProviderUpstreamFailed,
		contracts.ErrProviderFailed:
		if timeout {
			return contracts.SSEProviderTimeout
		}
		return contracts.SSEProviderError
	default:
		return contracts.SSEInternalError
	}
}

// sseFailureData builds the assistant_failed payload from the terminal
// pipeline error. retry_after_ms is present only when the provider gave
// a backoff hint.
func sseFailureData(perr *PipelineError, timeout bool) map[string]any {
	data := map[string]any{
		"code":      sseFailureCode(perr.Code, timeout),
		"detail":    perr.Detail,
		"retryable": perr.Retryable,
		"category":  perr.Code,
	}
	if perr.RetryAfterMs > 0 {
		data["retry_after_ms"] = perr.RetryAfterMs
	}
	return data
}
