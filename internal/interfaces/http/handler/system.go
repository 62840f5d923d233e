package handler

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// DefaultCheckTimeout bounds all probes of one health request
const DefaultCheckTimeout = 2 * time.Second

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	CheckOK         = "ok"
	CheckFailed     = "error"
)

// SystemHandler serves the health probe and build information
type SystemHandler struct {
	BaseHandler
	name    string
	version string
	started time.Time
	timeout time.Duration
	checks  map[string]HealthCheck
}

func NewSystemHandler(name, version string) *SystemHandler {
	return &SystemHandler{
		name:    name,
		version: version,
		started: time.Now(),
		timeout: DefaultCheckTimeout,
		checks:  make(map[string]HealthCheck),
	}
}

// AddCheck registers a dependency probe run by Health
func (h *SystemHandler) AddCheck(name string, check HealthCheck) *SystemHandler {
	h.checks[name] = check
	return h
}

// CheckResult is one probe outcome. Failure details go to the log only.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type HealthResponse struct {
	Status string                 `json:"status"`
	Time   time.Time              `json:"time"`
	Checks map[string]CheckResult `json:"checks"`
}

// Health runs every check concurrently under one deadline and answers 503
// if any fails.
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(h.checks))
		g       errgroup.Group
	)
	for name, check := range h.checks {
		g.Go(func() error {
			start := time.Now()
			err := check(ctx)
			res := CheckResult{Status: CheckOK, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status = CheckFailed
				logger.GetGinLogger(c).Warn("Health check failed", zap.String("check", name), zap.Error(err))
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{Status: StatusHealthy, Time: time.Now().UTC(), Checks: results}
	code := http.StatusOK
	for _, r := range results {
		if r.Status != CheckOK {
			resp.Status, code = StatusUnhealthy, http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, resp)
}

type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo reports build and runtime details
// @ID          getSystemInfo
// @Summary     Get system information
// @Tags        system
// @Produce     json
// @Success     200 {object} APIResponse[SystemInfoResponse]
// @Router      /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

type PingResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Ping answers pong
// @ID          pingSystem
// @Summary     Ping the API
// @Tags        system
// @Produce     json
// @Success     200 {object} APIResponse[PingResponse]
// @Router      /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{Message: "pong", Timestamp: time.Now().UTC()})
}
