package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
)

// RejectFunc writes the response for a request without a usable bearer token. reason
// is a short client-safe description.
type RejectFunc func(w http.ResponseWriter, r *http.Request, reason string)

// Authenticate returns middleware that requires a valid bearer token and stores the
// user id in the request context. Rejections are RFC7807 problems.
func Authenticate(tokens *Tokens, logger *slog.Logger) func(http.Handler) http.Handler {
	return AuthenticateWith(tokens, logger, rejectProblem)
}

// AuthenticateWith is Authenticate with a caller supplied rejection body, for route
// groups that answer in their own envelope.
func AuthenticateWith(tokens *Tokens, logger *slog.Logger, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			raw = strings.TrimSpace(raw)
			if !ok || raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="stockroom"`)
				reject(w, r, "bearer token required")
				return
			}
			userID, err := tokens.Verify(raw)
			if err != nil {
				if logger != nil {
					logger.Debug("reject bearer token", slog.Any("error", err))
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="stockroom", error="invalid_token"`)
				reject(w, r, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithUserID(r.Context(), userID)))
		})
	}
}

func rejectProblem(w http.ResponseWriter, _ *http.Request, reason string) {
	httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", reason)
}
