// Package token serves the shared token over HTTP.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"3tcapital/tokenbroker/internal/core/authtoken"
	httperrors "3tcapital/tokenbroker/internal/infrastructure/http"
)

const defaultHeartbeat = 15 * time.Second

// Source is satisfied by *tokenprovider.Provider.
type Source interface {
	Token(ctx context.Context) (string, error)
	Watch(ctx context.Context) (<-chan string, <-chan error)
}

// Handler bridges HTTP traffic with the token provider.
type Handler struct {
	source    Source
	log       *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a new token HTTP handler.
func NewHandler(source Source, log *slog.Logger) *Handler {
	return &Handler{source: source, log: log, heartbeat: defaultHeartbeat}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// GetToken handles GET /v1/token. It waits for the first token value until
// the request context ends.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	value, err := h.source.Token(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, tokenResponse{Token: value}, h.log)
}

// Stream handles GET /v1/token/stream as Server-Sent Events: one "token"
// event per value, a final "error" event if the subscription fails, and
// comment heartbeats in between.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tokens, failures := h.source.Watch(ctx)

	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Error("token stream cannot flush", "error", err)
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		var frame string
		select {
		case <-ctx.Done():
			return
		case value := <-tokens:
			frame = tokenFrame(value)
		case err := <-failures:
			// A value queued before the failure still goes out first.
			select {
			case value := <-tokens:
				if !h.writeFrame(rc, w, tokenFrame(value)) {
					return
				}
			default:
			}
			h.writeFrame(rc, w, fmt.Sprintf("event: error\ndata: %s\n\n", errorCode(err)))
			return
		case <-heartbeat.C:
			frame = ": keep-alive\n\n"
		}

		if !h.writeFrame(rc, w, frame) {
			return
		}
	}
}

func tokenFrame(value string) string {
	return fmt.Sprintf("event: token\ndata: %s\n\n", value)
}

func (h *Handler) writeFrame(rc *http.ResponseController, w http.ResponseWriter, frame string) bool {
	if _, err := fmt.Fprint(w, frame); err != nil {
		h.log.Debug("token stream closed by client", "error", err)
		return false
	}
	if err := rc.Flush(); err != nil {
		h.log.Debug("token stream flush failed", "error", err)
		return false
	}
	return true
}

// handleError maps provider errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authtoken.ErrRefreshFailed):
		h.log.Warn("token request failed", "error", err)
		httperrors.WriteError(w, http.StatusBadGateway, "Token authority error", []string{errorCode(err)}, h.log)
	case errors.Is(err, authtoken.ErrProviderClosed):
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Token unavailable", []string{errorCode(err)}, h.log)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Token unavailable", []string{errorCode(err)}, h.log)
	default:
		h.log.Error("unexpected token error", "error", err)
		httperrors.WriteError(w, http.StatusInternalServerError, "Internal error", []string{errorCode(err)}, h.log)
	}
}

// errorCode is the client-facing description of err. Authority errors stay
// in the logs and the audit trail.
func errorCode(err error) string {
	switch {
	case errors.Is(err, authtoken.ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, authtoken.ErrProviderClosed):
		return "provider_closed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "no_token_available"
	default:
		return "internal_error"
	}
}
