package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeClient is the in-process provider used by tests and local boots.
// Responses are scripted per call order; once the script runs out it
// falls back to a minimal well-formed envelope.
type FakeClient struct {
	mu       sync.Mutex
	script   []ScriptedReply
	calls    []Request
	fallback string
}

// ScriptedReply is one scripted outcome: either raw text or an error.
type ScriptedReply struct {
	RawText string
	Err     error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Script appends replies consumed in call order.
func (f *FakeClient) Script(replies ...ScriptedReply) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, replies...)
	return f
}

// WithFallbackText overrides the default fallback assistant text.
func (f *FakeClient) WithFallbackText(text string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = text
	return f
}

// Calls returns a copy of every request seen so far.
func (f *FakeClient) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *FakeClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var reply *ScriptedReply
	if len(f.script) > 0 {
		r := f.script[0]
		f.script = f.script[1:]
		reply = &r
	}
	fallback := f.fallback
	f.mu.Unlock()

	if reply != nil {
		if reply.Err != nil {
			return nil, reply.Err
		}
		return &Response{RawText: reply.RawText, Model: "fake-1", Provider: "fake", Usage: Usage{PromptTokens: 8, CompletionTokens: 16, TotalTokens: 24}}, nil
	}

	if fallback == "" {
		fallback = "Happy to help. What would you like to dig into next?"
	}
	envelope, _ := json.Marshal(map[string]any{
		"assistant_text": fallback,
		"meta": map[string]any{
			"meta_version": "v1",
			"shape": map[string]any{
				"arc":       "support",
				"active":    []string{},
				"parked":    []string{},
				"decisions": []string{},
				"next":      []string{},
			},
			"affect_signal": map[string]any{
				"label":      "neutral",
				"intensity":  0.1,
				"confidence": 0.8,
			},
		},
	})
	return &Response{RawText: string(envelope), Model: "fake-1", Provider: "fake", Usage: Usage{PromptTokens: 8, CompletionTokens: 16, TotalTokens: 24}}, nil
}
