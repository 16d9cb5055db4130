// Package session lets operators drive the login state the token provider
// is gated on.
package session

import (
	"log/slog"
	"net/http"

	httperrors "3tcapital/tokenbroker/internal/infrastructure/http"
	"3tcapital/tokenbroker/internal/infrastructure/http/middleware"
)

// State is satisfied by *loginstate.Relay.
type State interface {
	Set(loggedIn bool)
	Current() (loggedIn bool, known bool)
}

// Handler bridges HTTP traffic with the login-state relay.
type Handler struct {
	state State
	log   *slog.Logger
}

// NewHandler creates a new session HTTP handler.
func NewHandler(state State, log *slog.Logger) *Handler {
	return &Handler{state: state, log: log}
}

type sessionResponse struct {
	LoggedIn bool `json:"logged_in"`
	Known    bool `json:"known"`
}

// Get handles GET /v1/session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w)
}

// Login handles POST /v1/session. Subscribers waiting for a token get one.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.set(r, true)
	h.respond(w)
}

// Logout handles DELETE /v1/session. The cached token is dropped.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.set(r, false)
	h.respond(w)
}

func (h *Handler) set(r *http.Request, loggedIn bool) {
	h.log.Info("session change requested",
		"logged_in", loggedIn,
		"subject", middleware.Subject(r.Context()),
	)
	h.state.Set(loggedIn)
}

func (h *Handler) respond(w http.ResponseWriter) {
	loggedIn, known := h.state.Current()
	httperrors.WriteJSON(w, http.StatusOK, sessionResponse{LoggedIn: loggedIn, Known: known}, h.log)
}
