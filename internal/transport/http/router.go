package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quiz-engine/internal/domain"
)

// NewRouter mounts the health check, the quiz websocket, the selectable categories and the
// result endpoints.
func NewRouter(ws *WSHandler, results *ResultsHandler, categories []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)
	r.Get("/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"categories": categories,
			"mixed":      domain.MixedSelector,
		})
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/results", results.ListResults)
		r.Get("/dashboard", results.Dashboard)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
