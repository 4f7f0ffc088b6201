package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/event-updates-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// RouterDeps holds everything the HTTP surface is built from.
type RouterDeps struct {
	Updates        *UpdateHandler
	WebSocket      *WebSocketHandler
	Health         *HealthHandler
	Verifier       ports.IdentityVerifier
	Limiter        ports.RateLimiter
	APIOperation   string
	IPLimiter      *mw.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(deps.Logger))
	r.Use(mw.RecoveryLogger(deps.Logger))

	if deps.IPLimiter != nil {
		r.Use(deps.IPLimiter.Middleware)
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{"Retry-After", mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	if deps.Health != nil {
		deps.Health.RegisterRoutes(r)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route. Authentication happens before the upgrade.
		r.Get("/ws", deps.WebSocket.ServeHTTP)

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(deps.Verifier))
			if deps.Limiter != nil {
				r.Use(mw.ActorRateLimit(deps.Limiter, deps.APIOperation, deps.Logger))
			}
			deps.Updates.RegisterRoutes(r)
		})
	})

	return r
}
