package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy() Pinger {
	return PingerFunc(func(context.Context) error { return nil })
}

func failing(msg string) Pinger {
	return PingerFunc(func(context.Context) error { return errors.New(msg) })
}

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		register func(*HealthChecker)
		want     string
	}{
		{"no dependencies", func(*HealthChecker) {}, StatusHealthy},
		{"all healthy", func(h *HealthChecker) {
			h.Register("adapter", healthy(), true)
			h.Register("otel", healthy(), false)
		}, StatusHealthy},
		{"optional down", func(h *HealthChecker) {
			h.Register("adapter", healthy(), true)
			h.Register("otel", failing("collector unreachable"), false)
		}, StatusDegraded},
		{"critical down", func(h *HealthChecker) {
			h.Register("adapter", failing("connection refused"), true)
			h.Register("otel", failing("collector unreachable"), false)
		}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			tt.register(h)
			status := h.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, "test", status.Version)
		})
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	h := NewHealthChecker("1.2.3")
	h.Register("adapter", failing("connection refused"), true)

	rr := httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Dependencies["adapter"].Message)
}

func TestHealthChecker_Routes(t *testing.T) {
	h := NewHealthChecker("1.2.3")
	h.Register("otel", failing("down"), false)
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, h)

	for path, want := range map[string]int{
		"/health/live":  http.StatusOK,
		"/health/ready": http.StatusOK,
		"/health":       http.StatusOK,
	} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rr.Code, path)
	}
}
