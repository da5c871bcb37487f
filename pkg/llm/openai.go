package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls the chat completions API with a 30s budget per call.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	base := os.Getenv("OPENAI_BASE_URL")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: base,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient overrides the transport, for tests against httptest.
func (c *OpenAIClient) WithHTTPClient(hc *http.Client) *OpenAIClient {
	c.http = hc
	return c
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := openAIRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: req.PromptText}},
		Temperature: 0.7,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &contracts.ProviderError{
				Code:         contracts.ErrProviderUpstreamFailed,
				Detail:       "openai request timed out",
				Retryable:    true,
				Timeout:      true,
				RetryAfterMs: 2000,
			}
		}
		return nil, &contracts.ProviderError{Code: contracts.ErrProviderUpstreamFailed, Detail: err.Error(), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, providerErrorFromStatus(resp)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &contracts.ProviderError{Code: contracts.ErrProviderFailed, Detail: "openai: decode response: " + err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return nil, &contracts.ProviderError{Code: contracts.ErrProviderFailed, Detail: "openai: empty choices"}
	}

	return &Response{
		RawText:  parsed.Choices[0].Message.Content,
		Model:    parsed.Model,
		Provider: "openai",
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func providerErrorFromStatus(resp *http.Response) *contracts.ProviderError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	pe := &contracts.ProviderError{
		Detail:     fmt.Sprintf("openai status %d: %s", resp.StatusCode, string(snippet)),
		HTTPStatus: resp.StatusCode,
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		pe.Code = contracts.ErrProviderUpstreamFailed
		pe.Retryable = true
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				pe.RetryAfterMs = int64(secs) * 1000
			}
		}
	case resp.StatusCode >= 500:
		pe.Code = contracts.ErrProviderUpstreamFailed
		pe.Retryable = true
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		pe.Code = contracts.ErrProviderInvalidRequest
	default:
		pe.Code = contracts.ErrProviderFailed
	}
	return pe
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
