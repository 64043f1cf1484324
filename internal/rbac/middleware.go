package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

type actorContextKey struct{}

// ContextWithActor stores the authorised actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor stored by Middleware.Require.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	// Param names the chi URL parameter carrying the organisation id.
	Param string
}

// Require ensures the current user holds one of roles in the organisation named by the
// URL parameter.
func (m Middleware) Require(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := strconv.ParseInt(chi.URLParam(r, m.param()), 10, 64)
			if err != nil || orgID <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organisation id")
				return
			}
			actor, err := m.Service.Authorize(r.Context(), orgID, roles...)
			if err != nil {
				if errors.Is(err, ErrUnauthorized) {
					httpx.Problem(w, http.StatusForbidden, http.StatusText(http.StatusForbidden), "")
					return
				}
				if m.Logger != nil {
					m.Logger.Error("rbac require", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

func (m Middleware) param() string {
	if m.Param == "" {
		return "orgID"
	}
	return m.Param
}
