// Package api is the HTTP surface: POST /v1/chat, the internal topology
// endpoint, the per-user SSE stream, health, and rate limiting.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/orchestrator"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// writeValidation writes the 400 evidence-validation shape.
func writeValidation(w http.ResponseWriter, verr *contracts.EvidenceValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "invalid_request",
		"code":    verr.Code,
		"message": verr.Message,
		"details": verr.Details,
	})
}

// writePipelineError writes the 422/500/502/504 failure shapes.
func writePipelineError(w http.ResponseWriter, perr *orchestrator.PipelineError) {
	body := map[string]any{
		"error":          perr.Code,
		"transmissionId": perr.TransmissionID,
		"retryable":      perr.Retryable,
	}
	if perr.TraceRunID != "" {
		body["traceRunId"] = perr.TraceRunID
	}
	if perr.Assistant != "" {
		body["assistant"] = perr.Assistant
	}
	if perr.RetryAfterMs > 0 {
		body["retry_after_ms"] = perr.RetryAfterMs
	}
	writeJSON(w, perr.Status, body)
}

// writeTooManyRequests writes the 429 shape with a Retry-After hint.
func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":     "rate_limited",
		"retryable": true,
	})
}
