package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"quiz-engine/internal/app"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ResultsHandler serves a user's stored results and dashboard.
type ResultsHandler struct {
	service *app.QuizService
	log     logrus.FieldLogger
}

func NewResultsHandler(service *app.QuizService, log logrus.FieldLogger) *ResultsHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResultsHandler{service: service, log: log}
}

func (h *ResultsHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	log := h.log.WithField("user_id", userID)

	results, err := h.service.History(r.Context(), userID, limitParam(r))
	if err != nil {
		log.WithError(err).Error("listing results")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":  userID,
		"results": results,
	})
}

func (h *ResultsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	log := h.log.WithField("user_id", userID)

	dashboard, err := h.service.Dashboard(r.Context(), userID, limitParam(r))
	if err != nil {
		log.WithError(err).Error("building dashboard")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
