package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"transcript-sync-service/internal/app"
	"transcript-sync-service/internal/service/session"
	"transcript-sync-service/internal/store"
	"transcript-sync-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, manager *session.Manager, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Realtime endpoint
	r.Get("/ws", hub.ServeWS)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", listSessions(manager))
		r.Get("/sessions/{sessionID}", getSession(manager))
		r.Get("/sessions/{sessionID}/audio", getAudio(manager))
	})

	// Short audio path kept for players that build it from the session id.
	r.Get("/sessions/{sessionID}/audio", getAudio(manager))

	return r
}

func listSessions(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := manager.ListSessions(r.Context(), 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list sessions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	}
}

func getSession(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		snap, err := manager.GetSession(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load session")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// getAudio serves the finalized recording. ServeContent handles Range
// requests, which the playback surface needs for seeking.
func getAudio(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		data, mime, ok := manager.Audio(id)
		if !ok {
			writeError(w, http.StatusNotFound, "no recording for session")
			return
		}
		if mime != "" {
			w.Header().Set("Content-Type", mime)
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
