package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// handleEvents serves the per-user SSE stream. The user id comes from a
// bearer JWT when SOL_JWT_SECRET is set, otherwise from the userId query
// parameter (dev deployments).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming_unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	hub := s.orch.Hub()
	ch := hub.Subscribe(userID)
	defer hub.Unsubscribe(userID, ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

// resolveUser authenticates the stream. With a JWT secret configured the
// token is mandatory and its sub claim names the user.
func (s *Server) resolveUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.cfg.JWTSecret == "" {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing_user_id"})
			return "", false
		}
		return userID, true
	}

	auth := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found || raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing_bearer_token"})
		return "", false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token"})
		return "", false
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token_subject"})
		return "", false
	}
	return sub, true
}
