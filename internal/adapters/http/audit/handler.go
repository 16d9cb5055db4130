// Package audit exposes the recorded token authority exchanges.
package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	coreaudit "3tcapital/tokenbroker/internal/core/audit"
	httperrors "3tcapital/tokenbroker/internal/infrastructure/http"
)

// Handler bridges HTTP traffic with the audit repository.
type Handler struct {
	repo coreaudit.Repository
	log  *slog.Logger
}

// NewHandler creates a new audit HTTP handler. repo is nil when auditing is
// disabled.
func NewHandler(repo coreaudit.Repository, log *slog.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

type exchangeResponse struct {
	ID              int64             `json:"id"`
	Authority       string            `json:"authority"`
	Operation       string            `json:"operation"`
	RequestMethod   string            `json:"request_method"`
	RequestURL      string            `json:"request_url"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     json.RawMessage   `json:"request_body,omitempty"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    json.RawMessage   `json:"response_body,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	Error           string            `json:"error,omitempty"`
	Succeeded       bool              `json:"succeeded"`
	CreatedAt       time.Time         `json:"created_at"`
}

type attemptResponse struct {
	AttemptID string             `json:"attempt_id"`
	Exchanges []exchangeResponse `json:"exchanges"`
}

// GetAttempt handles GET /v1/audit/{attempt_id}.
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Audit unavailable", []string{"auditing is disabled"}, h.log)
		return
	}

	attemptID := strings.TrimSpace(chi.URLParam(r, "attempt_id"))
	if attemptID == "" {
		httperrors.WriteError(w, http.StatusBadRequest, "Validation error", []string{"attempt_id is required"}, h.log)
		return
	}

	exchanges, err := h.repo.FindByAttemptID(r.Context(), attemptID)
	if err != nil {
		h.log.Error("audit lookup failed", "attempt_id", attemptID, "error", err)
		httperrors.WriteError(w, http.StatusInternalServerError, "Internal error", []string{"audit lookup failed"}, h.log)
		return
	}
	if len(exchanges) == 0 {
		httperrors.WriteError(w, http.StatusNotFound, "Not found", []string{"no exchanges recorded for attempt"}, h.log)
		return
	}

	response := attemptResponse{AttemptID: attemptID, Exchanges: make([]exchangeResponse, 0, len(exchanges))}
	for _, e := range exchanges {
		response.Exchanges = append(response.Exchanges, exchangeResponse{
			ID:              e.ID,
			Authority:       e.Authority,
			Operation:       e.Operation,
			RequestMethod:   e.RequestMethod,
			RequestURL:      e.RequestURL,
			RequestHeaders:  e.RequestHeaders,
			RequestBody:     e.RequestBody,
			ResponseStatus:  e.ResponseStatus,
			ResponseHeaders: e.ResponseHeaders,
			ResponseBody:    e.ResponseBody,
			DurationMs:      e.DurationMs,
			Error:           e.ErrorMessage,
			Succeeded:       e.Succeeded(),
			CreatedAt:       e.CreatedAt,
		})
	}

	httperrors.WriteJSON(w, http.StatusOK, response, h.log)
}
