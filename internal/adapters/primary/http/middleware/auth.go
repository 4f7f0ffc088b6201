package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/lorrc/event-updates-backend/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ActorKey is the key used to store the verified actor in the request context.
const ActorKey contextKey = "actor"

// ExtractToken returns the bearer token from the Authorization header, or
// from the token query parameter when allowQuery is set.
func ExtractToken(r *http.Request, allowQuery bool) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Authenticate verifies the bearer credential and stores the actor in the
// request context.
func Authenticate(verifier ports.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r, false)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header is required", 0)
				return
			}

			actor, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", 0)
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = logging.WithUserID(ctx, actor.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithActor stores a verified actor in ctx.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// ActorFromContext returns the verified actor set by Authenticate.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(domain.Actor)
	return actor, ok
}
