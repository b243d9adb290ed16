package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	natsClient "registration-service/internal/nats"
	redisClient "registration-service/internal/redis"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db         *gorm.DB
	cache      *redisClient.Client
	natsClient *natsClient.Client
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, cache *redisClient.Client, nc *natsClient.Client) *HealthHandler {
	return &HealthHandler{
		db:         db,
		cache:      cache,
		natsClient: nc,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check represents a health check result
type Check struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemInfo represents system runtime information
type SystemInfo struct {
	Goroutines  int    `json:"goroutines"`
	MemoryAlloc uint64 `json:"memory_alloc_mb"`
	MemoryTotal uint64 `json:"memory_total_mb"`
	MemorySys   uint64 `json:"memory_sys_mb"`
	NumCPU      int    `json:"num_cpu"`
	GoVersion   string `json:"go_version"`
}

// Health returns the liveness status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Service:   "registration-service",
		Version:   "1.0.0",
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	// Include detailed checks if requested
	if c.Query("detailed") == "true" {
		response.Checks = h.performHealthChecks(c.Request.Context())
		response.System = h.getSystemInfo()
	}

	c.JSON(http.StatusOK, response)
}

// performHealthChecks runs all health checks
func (h *HealthHandler) performHealthChecks(ctx context.Context) map[string]Check {
	return map[string]Check{
		"database": h.checkDatabase(),
		"redis":    h.checkRedis(ctx),
		"nats":     h.checkNATS(),
	}
}

// checkDatabase checks database connectivity and stats
func (h *HealthHandler) checkDatabase() Check {
	sqlDB, err := h.db.DB()
	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Failed to get database instance",
		}
	}

	if err := sqlDB.Ping(); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database ping failed",
		}
	}

	stats := sqlDB.Stats()

	return Check{
		Status:  "healthy",
		Message: "Database connected",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"max_open":         stats.MaxOpenConnections,
			"wait_count":       stats.WaitCount,
			"wait_duration_ms": stats.WaitDuration.Milliseconds(),
		},
	}
}

// checkRedis checks session store connectivity
func (h *HealthHandler) checkRedis(ctx context.Context) Check {
	if h.cache == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Redis client not initialized",
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.cache.Ping(pingCtx); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Redis ping failed",
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Redis connected",
	}
}

// checkNATS checks NATS connectivity
func (h *HealthHandler) checkNATS() Check {
	if h.natsClient == nil {
		return Check{
			Status:  "unhealthy",
			Message: "NATS client not initialized",
		}
	}

	if !h.natsClient.IsConnected() {
		return Check{
			Status:  "unhealthy",
			Message: "NATS disconnected",
		}
	}

	return Check{
		Status:  "healthy",
		Message: "NATS connected",
	}
}

// getSystemInfo returns system runtime information
func (h *HealthHandler) getSystemInfo() *SystemInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &SystemInfo{
		Goroutines:  runtime.NumGoroutine(),
		MemoryAlloc: mem.Alloc / 1024 / 1024,      // MB
		MemoryTotal: mem.TotalAlloc / 1024 / 1024, // MB
		MemorySys:   mem.Sys / 1024 / 1024,        // MB
		NumCPU:      runtime.NumCPU(),
		GoVersion:   runtime.Version(),
	}
}

// Ready reports whether the service can take traffic. The database and
// Redis are required; NATS is not, since event publishing degrades to
// logged warnings.
func (h *HealthHandler) Ready(c *gin.Context) {
	response := HealthResponse{
		Service:   "registration-service",
		Version:   "1.0.0",
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]Check),
	}

	allReady := true

	dbCheck := h.checkDatabase()
	response.Checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		allReady = false
	}

	redisCheck := h.checkRedis(c.Request.Context())
	response.Checks["redis"] = redisCheck
	if redisCheck.Status != "healthy" {
		allReady = false
	}

	response.Checks["nats"] = h.checkNATS()

	if allReady {
		response.Status = "ready"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "not ready"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}
