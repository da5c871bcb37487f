package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolLabsHQ/solserver-sub002/pkg/config"
	"github.com/SolLabsHQ/solserver-sub002/pkg/llm"
	"github.com/SolLabsHQ/solserver-sub002/pkg/orchestrator"
	"github.com/SolLabsHQ/solserver-sub002/pkg/sse"
	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

func newTestServer(t *testing.T, cfg *config.Config, limiter Allower) (*Server, *httptest.Server) {
	t.Helper()
	orch := orchestrator.New(orchestrator.Deps{
		Config: cfg,
		Store:  store.NewMemoryStore(),
		Client: llm.NewFakeClient(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	topology := &store.TopologyKey{TopologyKey: "top-1", CreatedBy: "host-a", DBPath: "/data/sol.db"}
	s := NewServer(cfg, orch, topology, limiter)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func devServerConfig() *config.Config {
	return &config.Config{Env: "dev", LLMProvider: "fake", InternalToken: "secret"}
}

func postChat(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return resp, doc
}

func TestChatHappyPath(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	resp, doc := postChat(t, srv, `{"threadId":"t1","userId":"u1","message":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, doc["ok"])
	assert.NotEmpty(t, doc["assistant"])
	assert.NotEmpty(t, doc["transmissionId"])
}

func TestChatMalformedJSON(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	resp, doc := postChat(t, srv, `{"threadId":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", doc["error"])
	assert.Equal(t, "malformed_json", doc["code"])
}

func TestChatMissingField(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	resp, doc := postChat(t, srv, `{"threadId":"t1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_field", doc["code"])
}

func TestChatSimulateAccepted(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	resp, doc := postChat(t, srv, `{"threadId":"t1","userId":"u1","message":"hello","simulate":202}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, doc["pending"])
	assert.Equal(t, true, doc["simulated"])
}

func TestChatEvidenceValidationShape(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	body := `{"threadId":"t1","userId":"u1","message":"hello","evidence":{"supports":[{"id":"s1","type":"mystery","createdAt":"2026-08-24T10:00:00Z"}]}}`
	resp, doc := postChat(t, srv, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", doc["error"])
	assert.NotEmpty(t, doc["code"])
}

func TestTopologyAuth(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)

	resp, err := http.Get(srv.URL + "/internal/topology")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/internal/topology", nil)
	req.Header.Set("x-sol-internal-token", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req.Header.Set("x-sol-internal-token", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "top-1", doc["topologyKey"])
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type denyLimiter struct{ err error }

func (d denyLimiter) Allow(context.Context, string) (bool, error) { return false, d.err }

func TestRateLimitDenied(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), denyLimiter{})
	resp, doc := postChat(t, srv, `{"threadId":"t1","userId":"u1","message":"hello"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", doc["error"])
	assert.Equal(t, true, doc["retryable"])
}

// A limiter backend failure fails open.
func TestRateLimitFailsOpen(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), denyLimiter{err: assert.AnError})
	resp, doc := postChat(t, srv, `{"threadId":"t1","userId":"u1","message":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, doc["ok"])
}

func TestMemoryLimiterBurst(t *testing.T) {
	l := NewMemoryLimiter(0, 1)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	// Distinct callers get their own bucket.
	ok, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterClose(t *testing.T) {
	l := NewMemoryLimiter(5, 10)
	l.Close()
	assert.NotPanics(t, l.Close)

	// The limiter still answers after the cleanup goroutine exits.
	ok, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventsMissingUserID(t *testing.T) {
	_, srv := newTestServer(t, devServerConfig(), nil)
	resp, err := http.Get(srv.URL + "/v1/events")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	s, srv := newTestServer(t, devServerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?userId=u1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	hub := s.orch.Hub()
	require.Eventually(t, func() bool { return hub.SubscriberCount("u1") == 1 },
		2*time.Second, 10*time.Millisecond)
	hub.Publish("u1", sse.Event{Type: sse.EventRunStarted, TransmissionID: "tx-1"})

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	frame := string(buf[:n])
	assert.Contains(t, frame, "event: "+sse.EventRunStarted)
	assert.Contains(t, frame, `"tx-1"`)
	cancel()
}

func TestEventsJWTAuth(t *testing.T) {
	cfg := devServerConfig()
	cfg.JWTSecret = "jwt-secret"
	s, srv := newTestServer(t, cfg, nil)

	// Missing bearer token.
	resp, err := http.Get(srv.URL + "/v1/events")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token signed with the wrong key.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte("other-secret"))
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token: the sub claim names the stream user.
	good, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+good)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return s.orch.Hub().SubscriberCount("u1") == 1 },
		2*time.Second, 10*time.Millisecond)
	cancel()
}
