// Package llm abstracts the chat model behind a single-call client. The
// orchestrator never talks HTTP directly; it hands a rendered prompt to a
// Client and gets raw text back, with failures typed for retry decisions.
package llm

import (
	"context"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Request is one model invocation: the fully rendered prompt, the mode
// label for telemetry, and the model override (empty means the client's
// configured default).
type Request struct {
	PromptText string
	ModeLabel  string
	Model      string
}

// Usage is the provider-reported token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is the raw model output before envelope parsing.
type Response struct {
	RawText  string
	Model    string
	Provider string
	Usage    Usage
}

// Client is the single-call chat interface. Implementations return
// *contracts.ProviderError for upstream failures and *contracts.ConfigError
// for deployment misconfiguration.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// New builds the provider named in configuration. Unknown providers and
// missing openai credentials are config errors, surfaced at first use so
// the server can still boot for tests.
func New(provider, apiKey, model string) (Client, error) {
	switch provider {
	case "openai":
		if apiKey == "" {
			return nil, &contracts.ConfigError{Code: contracts.ErrOpenAIAPIKeyMissing, Detail: "OPENAI_API_KEY is not set"}
		}
		if model == "" {
			return nil, &contracts.ConfigError{Code: contracts.ErrOpenAIModelMissing, Detail: "OPENAI_MODEL is not set"}
		}
		return NewOpenAIClient(apiKey, model), nil
	case "fake", "":
		return NewFakeClient(), nil
	default:
		return nil, &contracts.ConfigError{Code: contracts.ErrProviderFailed, Detail: "unknown LLM provider: " + provider}
	}
}
