package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/mstgnz/dukapi/infra/response"
)

// Database is the part of *sql.DB the health check needs
type Database interface {
	PingContext(ctx context.Context) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Stats() sql.DBStats
}

// Cache reports whether Redis is configured and reachable
type Cache interface {
	Enabled() bool
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db             Database
	cache          Cache
	gatewayReady   bool
	environment    string
	startTime      time.Time
	checkTimeout   time.Duration
	slowDBResponse time.Duration
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Database    *DatabaseHealth           `json:"database"`
	Services    map[string]*ServiceHealth `json:"services"`
	System      *SystemHealth             `json:"system"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime int64  `json:"response_time_ms"`
	OpenConns    int    `json:"open_connections"`
	InUseConns   int    `json:"in_use_connections"`
	IdleConns    int    `json:"idle_connections"`
	WaitCount    int64  `json:"wait_count"`
	Version      string `json:"version,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler. db and cache may be nil.
func NewHealthHandler(db Database, cache Cache, gatewayReady bool, environment string) *HealthHandler {
	return &HealthHandler{
		db:             db,
		cache:          cache,
		gatewayReady:   gatewayReady,
		environment:    environment,
		startTime:      time.Now(),
		checkTimeout:   5 * time.Second,
		slowDBResponse: time.Second,
	}
}

// CheckHealth pings the database and Redis and reports gateway configuration
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.environment,
		Database:    h.checkDatabaseHealth(ctx),
		Services:    h.checkServicesHealth(ctx),
		System:      checkSystemHealth(),
	}
	health.Status = h.determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: "unknown"}

	if h.db == nil {
		dbHealth.Status = "not_configured"
		dbHealth.Error = "Database not configured"
		return dbHealth
	}

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		dbHealth.ResponseTime = time.Since(start).Milliseconds()
		return dbHealth
	}
	took := time.Since(start)

	dbHealth.Connected = true
	dbHealth.ResponseTime = took.Milliseconds()

	stats := h.db.Stats()
	dbHealth.OpenConns = stats.OpenConnections
	dbHealth.InUseConns = stats.InUse
	dbHealth.IdleConns = stats.Idle
	dbHealth.WaitCount = stats.WaitCount

	var version string
	if err := h.db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err == nil {
		dbHealth.Version = strings.Fields(version + " ")[0]
	}

	switch {
	case took > h.slowDBResponse, dbHealth.WaitCount > 100:
		dbHealth.Status = "degraded"
	default:
		dbHealth.Status = "healthy"
	}

	return dbHealth
}

func (h *HealthHandler) checkServicesHealth(ctx context.Context) map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)

	redis := &ServiceHealth{Description: "Cache, payment dedupe and rate limiting"}
	switch {
	case h.cache == nil || !h.cache.Enabled():
		redis.Status = "not_configured"
		redis.Error = "Falling back to in-memory rate limiting and database locks"
	default:
		if err := h.cache.Health(ctx); err != nil {
			redis.Status = "unhealthy"
			redis.Error = err.Error()
		} else {
			redis.Status = "healthy"
			redis.Healthy = true
		}
	}
	services["redis"] = redis

	gateway := &ServiceHealth{Description: "M-Pesa STK push"}
	if h.gatewayReady {
		gateway.Status = "healthy"
		gateway.Healthy = true
	} else {
		gateway.Status = "not_configured"
		gateway.Error = "Payments are disabled"
	}
	services["mpesa"] = gateway

	return services
}

// determineOverallStatus: the database is required, everything else degrades
func (h *HealthHandler) determineOverallStatus(health *HealthStatus) string {
	if health.Database == nil || !health.Database.Connected {
		return "unhealthy"
	}
	if health.Database.Status == "degraded" {
		return "degraded"
	}
	for _, s := range health.Services {
		if s.Status == "unhealthy" {
			return "degraded"
		}
	}
	return "healthy"
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
