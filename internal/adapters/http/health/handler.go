package health

import (
	"log/slog"
	"net/http"

	apphealth "3tcapital/tokenbroker/internal/application/health"
	httpjson "3tcapital/tokenbroker/internal/infrastructure/http"
)

// Handler bridges HTTP traffic with the health application service.
type Handler struct {
	service *apphealth.Service
	log     *slog.Logger
}

func NewHandler(service *apphealth.Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Status always answers 200; a degraded component does not stop the broker
// from serving tokens.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteJSON(w, http.StatusOK, h.service.Status(r.Context()), h.log)
}
