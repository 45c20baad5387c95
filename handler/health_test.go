package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downDatabase struct{}

func (downDatabase) PingContext(context.Context) error {
	return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
}

func (downDatabase) QueryRowContext(context.Context, string, ...any) *sql.Row {
	panic("not reached when ping fails")
}

func (downDatabase) Stats() sql.DBStats { return sql.DBStats{} }

type fakeCache struct {
	enabled bool
	err     error
}

func (c fakeCache) Enabled() bool { return c.enabled }
func (c fakeCache) Health(context.Context) error { return c.err }

func TestHealthHandler_CheckHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         Database
		expectCode int
		expectDB   string
	}{
		{
			name:       "no_database",
			expectCode: http.StatusServiceUnavailable,
			expectDB:   "not_configured",
		},
		{
			name:       "database_down",
			db:         downDatabase{},
			expectCode: http.StatusServiceUnavailable,
			expectDB:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, nil, false, "test")
			w := httptest.NewRecorder()

			h.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)

			data := resp.Data.(map[string]any)
			assert.Equal(t, "unhealthy", data["status"])
			assert.Equal(t, tt.expectDB, data["database"].(map[string]any)["status"])
		})
	}
}

func TestHealthHandler_Services(t *testing.T) {
	h := NewHealthHandler(nil, fakeCache{enabled: true, err: errors.New("i/o timeout")}, true, "test")

	services := h.checkServicesHealth(context.Background())

	require.Contains(t, services, "redis")
	assert.Equal(t, "unhealthy", services["redis"].Status)
	assert.Equal(t, "i/o timeout", services["redis"].Error)
	assert.True(t, services["mpesa"].Healthy)

	h = NewHealthHandler(nil, fakeCache{}, false, "test")
	services = h.checkServicesHealth(context.Background())
	assert.Equal(t, "not_configured", services["redis"].Status)
	assert.Equal(t, "not_configured", services["mpesa"].Status)
}

func TestDetermineOverallStatus(t *testing.T) {
	h := NewHealthHandler(nil, nil, false, "test")
	connected := &DatabaseHealth{Status: "healthy", Connected: true}

	tests := []struct {
		name   string
		health *HealthStatus
		want   string
	}{
		{
			name:   "database_missing",
			health: &HealthStatus{},
			want:   "unhealthy",
		},
		{
			name:   "all_healthy",
			health: &HealthStatus{Database: connected, Services: map[string]*ServiceHealth{"redis": {Status: "healthy"}}},
			want:   "healthy",
		},
		{
			name:   "redis_down",
			health: &HealthStatus{Database: connected, Services: map[string]*ServiceHealth{"redis": {Status: "unhealthy"}}},
			want:   "degraded",
		},
		{
			name:   "gateway_not_configured",
			health: &HealthStatus{Database: connected, Services: map[string]*ServiceHealth{"mpesa": {Status: "not_configured"}}},
			want:   "healthy",
		},
		{
			name:   "slow_database",
			health: &HealthStatus{Database: &DatabaseHealth{Status: "degraded", Connected: true}},
			want:   "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.determineOverallStatus(tt.health))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}
