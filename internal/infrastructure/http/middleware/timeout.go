package middleware

import (
	"context"
	"net/http"
	"time"
)

// RequestTimeout bounds the request context to d. Handlers that wait on the
// token provider give up when it ends; the server's WriteTimeout still applies.
func RequestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
