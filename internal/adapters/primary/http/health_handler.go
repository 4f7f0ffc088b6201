package http

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthChecker defines the interface for health check dependencies
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// RealtimeStats reports local connection counts.
type RealtimeStats interface {
	ClientCount() int
	RoomCount() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks    map[string]HealthChecker
	realtime  RealtimeStats
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. Every named check must pass
// for the service to be ready.
func NewHealthHandler(checks map[string]HealthChecker, realtime RealtimeStats, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		realtime:  realtime,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// RealtimeResponse summarises the websocket hub.
type RealtimeResponse struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// HandleLiveness handles liveness probe requests (is the service running?)
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles readiness probe requests (can the service accept traffic?)
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	WriteJSON(w, code, h.response(status, checks))
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Realtime *RealtimeResponse `json:"realtime,omitempty"`
		Memory   struct {
			Alloc      uint64 `json:"alloc_bytes"`
			TotalAlloc uint64 `json:"total_alloc_bytes"`
			Sys        uint64 `json:"sys_bytes"`
			NumGC      uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines int `json:"goroutines"`
	}{
		HealthResponse: h.response(status, checks),
		Goroutines:     runtime.NumGoroutine(),
	}
	if h.realtime != nil {
		response.Realtime = &RealtimeResponse{
			Connections: h.realtime.ClientCount(),
			Rooms:       h.realtime.RoomCount(),
		}
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	WriteJSON(w, code, response)
}

func (h *HealthHandler) response(status string, checks map[string]Check) HealthResponse {
	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}
}

// runChecks pings every dependency in name order.
func (h *HealthHandler) runChecks(ctx context.Context) (map[string]Check, bool) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]Check, len(names))
	healthy := true
	for _, name := range names {
		check := ping(ctx, h.checks[name])
		if check.Status != "healthy" {
			healthy = false
		}
		results[name] = check
	}
	return results, healthy
}

func ping(ctx context.Context, checker HealthChecker) Check {
	if checker == nil {
		return Check{Status: "unhealthy", Message: "not configured"}
	}

	start := time.Now()
	err := checker.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}

	return Check{
		Status:  "healthy",
		Latency: latency.String(),
	}
}
