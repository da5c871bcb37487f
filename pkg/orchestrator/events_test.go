package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

func TestSSEFailureCode(t *testing.T) {
	cases := []struct {
		category string
		timeout  bool
		want     string
	}{
		{contracts.ErrOutputContractFailed, false, contracts.SSEOutputEnvelopeInvalid},
		{contracts.ErrEvidenceBindingFailed, false, contracts.SSEGateRegenExhausted},
		{contracts.ErrClaimsWithoutEvidence, false, contracts.SSEGateRegenExhausted},
		{contracts.ErrEvidenceBudgetExceeded, false, contracts.SSEGateRegenExhausted},
		{contracts.ErrDriverBlockEnforcementFailed, false, contracts.SSEGateRegenExhausted},
		{contracts.ErrProviderFailed, false, contracts.SSEProviderError},
		{contracts.ErrProviderUpstreamFailed, false, contracts.SSEProviderError},
		{contracts.ErrProviderUpstreamFailed, true, contracts.SSEProviderTimeout},
		{contracts.ErrProviderInvalidRequest, false, contracts.SSEProviderError},
		{"internal_error", false, contracts.SSEInternalError},
		{contracts.ErrOpenAIAPIKeyMissing, false, contracts.SSEInternalError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sseFailureCode(tc.category, tc.timeout), tc.category)
	}
}

func TestSSEFailureDataOmitsZeroBackoff(t *testing.T) {
	data := sseFailureData(&PipelineError{Code: contracts.ErrEvidenceBindingFailed, Detail: "ref", Retryable: false}, false)
	assert.Equal(t, contracts.SSEGateRegenExhausted, data["code"])
	assert.Equal(t, "ref", data["detail"])
	assert.NotContains(t, data, "retry_after_ms")

	data = sseFailureData(&PipelineError{Code: contracts.ErrProviderUpstreamFailed, Retryable: true, RetryAfterMs: 250}, true)
	assert.Equal(t, contracts.SSEProviderTimeout, data["code"])
	assert.EqualValues(t, 250, data["retry_after_ms"])
}
