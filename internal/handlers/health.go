package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	serviceName    = "tenancy-service"
	serviceVersion = "1.0.0"
	checkTimeout   = 2 * time.Second
)

var startTime = time.Now()

// Pinger is a dependency that can report its connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports whether a long-lived connection is up
type ConnectionChecker interface {
	IsConnected() bool
}

// TenantCounter reports registry size for the detailed health view
type TenantCounter interface {
	CountTenants(ctx context.Context) (active, total int64, err error)
}

// HealthHandler serves liveness and readiness. The host cache and the event
// bus are optional; only the database gates readiness.
type HealthHandler struct {
	db      *gorm.DB
	cache   Pinger
	events  ConnectionChecker
	tenants TenantCounter
}

// NewHealthHandler creates a health handler. cache and events may be nil when disabled.
func NewHealthHandler(db *gorm.DB, cache Pinger, events ConnectionChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, events: events}
}

// SetTenantCounter adds registry counts to ?detailed=true responses
func (h *HealthHandler) SetTenantCounter(tenants TenantCounter) {
	h.tenants = tenants
}

// HealthResponse is the body of /health and /ready
type HealthResponse struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Runtime   *RuntimeInfo     `json:"runtime,omitempty"`
}

// Check is one dependency result
type Check struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RuntimeInfo is reported in detailed health responses
type RuntimeInfo struct {
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
	GoVersion  string `json:"go_version"`
}

func newHealthResponse(status string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Service:   serviceName,
		Version:   serviceVersion,
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Health reports liveness; ?detailed=true adds dependency checks, registry
// counts and runtime info
func (h *HealthHandler) Health(c *gin.Context) {
	response := newHealthResponse("healthy")

	if c.Query("detailed") == "true" {
		ctx := c.Request.Context()
		response.Checks = h.dependencyChecks(ctx)
		if h.tenants != nil {
			response.Checks["tenants"] = h.checkTenants(ctx)
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		response.Runtime = &RuntimeInfo{
			Goroutines: runtime.NumGoroutine(),
			HeapMB:     mem.HeapAlloc / 1024 / 1024,
			GoVersion:  runtime.Version(),
		}
	}

	c.JSON(http.StatusOK, response)
}

// Ready answers 200 when the database is reachable. Without Redis the resolver
// reads hosts straight from the database; without NATS events are dropped.
func (h *HealthHandler) Ready(c *gin.Context) {
	response := newHealthResponse("ready")
	response.Checks = h.dependencyChecks(c.Request.Context())

	if response.Checks["database"].Status != "healthy" {
		response.Status = "not ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) dependencyChecks(ctx context.Context) map[string]Check {
	return map[string]Check{
		"database":   h.checkDatabase(ctx),
		"host_cache": h.checkHostCache(ctx),
		"events":     h.checkEvents(),
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	sqlDB, err := h.db.DB()
	if err != nil {
		return Check{Status: "unhealthy", Message: "Failed to get database instance"}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return Check{Status: "unhealthy", Message: "Database ping failed"}
	}

	stats := sqlDB.Stats()
	return Check{
		Status:  "healthy",
		Message: "Database connected",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"wait_count":       stats.WaitCount,
		},
	}
}

func (h *HealthHandler) checkHostCache(ctx context.Context) Check {
	if h.cache == nil {
		return Check{Status: "disabled", Message: "Host lookups go to the database"}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := h.cache.Ping(ctx); err != nil {
		return Check{Status: "unhealthy", Message: "Redis ping failed"}
	}
	return Check{Status: "healthy", Message: "Redis connected"}
}

func (h *HealthHandler) checkEvents() Check {
	switch {
	case h.events == nil:
		return Check{Status: "disabled", Message: "Tenant events are not published"}
	case !h.events.IsConnected():
		return Check{Status: "unhealthy", Message: "NATS disconnected"}
	default:
		return Check{Status: "healthy", Message: "NATS connected"}
	}
}

func (h *HealthHandler) checkTenants(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	active, total, err := h.tenants.CountTenants(ctx)
	if err != nil {
		return Check{Status: "unhealthy", Message: "Failed to count tenants"}
	}
	return Check{
		Status: "healthy",
		Details: map[string]interface{}{
			"active": active,
			"total":  total,
		},
	}
}
