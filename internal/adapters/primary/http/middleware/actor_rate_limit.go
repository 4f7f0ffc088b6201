package middleware

import (
	"log/slog"
	"net/http"

	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// ActorRateLimit charges every authenticated request against the actor's
// budget for operation. It must run after Authenticate. The limiter failing
// lets the request through.
func ActorRateLimit(limiter ports.RateLimiter, operation string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), operation, actor.UserID.String())
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					"operation", operation,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				appErr := apperrors.NewRateLimitError(decision.RetryAfter)
				writeError(w, appErr.StatusCode, appErr.Code, appErr.Message, appErr.RetryAfterSeconds())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
