package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/SolLabsHQ/solserver-sub002/pkg/config"
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
	"github.com/SolLabsHQ/solserver-sub002/pkg/orchestrator"
	"github.com/SolLabsHQ/solserver-sub002/pkg/store"
)

// Server wires the HTTP handlers.
type Server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	topology *store.TopologyKey
	limiter  Allower
	logger   *slog.Logger
}

func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, topology *store.TopologyKey, limiter Allower) *Server {
	return &Server{
		cfg:      cfg,
		orch:     orch,
		topology: topology,
		limiter:  limiter,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes builds the mux. The chat endpoint sits behind the rate limiter;
// health and the internal endpoint do not.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat", RateLimit(s.limiter, http.HandlerFunc(s.handleChat)))
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /internal/topology", s.handleTopology)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var packet contracts.PacketInput
	if err := json.NewDecoder(r.Body).Decode(&packet); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid_request",
			"code":    "malformed_json",
			"message": "request body is not valid JSON",
		})
		return
	}
	if packet.ThreadID == "" || packet.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid_request",
			"code":    "missing_field",
			"message": "threadId and message are required",
		})
		return
	}

	if packet.Simulate == http.StatusAccepted {
		pending, perr := s.orch.RunAsync(r.Context(), &packet)
		if perr != nil {
			s.writeFailure(w, perr)
			return
		}
		writeJSON(w, http.StatusAccepted, pending)
		return
	}

	resp, perr := s.orch.Run(r.Context(), &packet)
	if perr != nil {
		s.writeFailure(w, perr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeFailure(w http.ResponseWriter, perr *orchestrator.PipelineError) {
	if perr.Validation != nil {
		writeValidation(w, perr.Validation)
		return
	}
	writePipelineError(w, perr)
}

// handleTopology is gated by the internal token header: 401 when the
// header is missing, 403 on mismatch.
func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("x-sol-internal-token")
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing_internal_token"})
		return
	}
	if s.cfg.InternalToken == "" || token != s.cfg.InternalToken {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "invalid_internal_token"})
		return
	}
	writeJSON(w, http.StatusOK, s.topology)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
