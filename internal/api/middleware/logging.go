package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// logUserKey carries a slot the auth middleware fills in once the token is
// verified. Logger runs outside RequireAuth, so it cannot see the value the
// inner request context holds; the shared slot bridges the two.
const logUserKey contextKey = "log_user"

// Logger returns a request logging middleware using zerolog. Requests made
// by an authenticated user carry their id; websocket upgrades are marked
// since their latency spans the whole connection lifetime.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			authedUser := new(string)
			r = r.WithContext(context.WithValue(r.Context(), logUserKey, authedUser))

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				evt := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)
				if *authedUser != "" {
					evt = evt.Str("user_id", *authedUser)
				}
				if isUpgrade(r) {
					evt = evt.Bool("websocket", true)
				}
				evt.Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
