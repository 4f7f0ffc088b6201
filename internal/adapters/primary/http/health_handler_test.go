package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStats struct{ clients, rooms int }

func (s stubStats) ClientCount() int { return s.clients }
func (s stubStats) RoomCount() int   { return s.rooms }

func healthRouter(checks map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()
	NewHealthHandler(checks, stubStats{clients: 3, rooms: 2}, "1.2.3").RegisterRoutes(r)
	return r
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := HealthCheckFunc(func(context.Context) error { return nil })
	down := HealthCheckFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all checks pass", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthRouter(map[string]HealthChecker{"database": ok, "nats": ok}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "1.2.3", body.Version)
		assert.Len(t, body.Checks, 2)
	})

	t.Run("one failing check", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthRouter(map[string]HealthChecker{"database": ok, "nats": down}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["nats"].Message)
		assert.Equal(t, "healthy", body.Checks["database"].Status)
	})

	t.Run("unconfigured check", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthRouter(map[string]HealthChecker{"database": nil}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealthHandler_Detailed(t *testing.T) {
	rec := httptest.NewRecorder()
	healthRouter(map[string]HealthChecker{
		"database": HealthCheckFunc(func(context.Context) error { return nil }),
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string           `json:"status"`
		Realtime RealtimeResponse `json:"realtime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, RealtimeResponse{Connections: 3, Rooms: 2}, body.Realtime)
}

func TestHealthHandler_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	healthRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
