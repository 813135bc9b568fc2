package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"reorder-service/internal/cache"
	"reorder-service/internal/config"
	"reorder-service/internal/engine"
	apperrors "reorder-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const statusCacheKey = "reorder:status"

// triggerCycleTimeout bounds a manually triggered evaluation cycle, matching
// the bound the daemon gives its periodic cycles.
const triggerCycleTimeout = 5 * time.Minute

// Runner is the engine surface the HTTP layer needs.
type Runner interface {
	RunCycle(ctx context.Context) (engine.Summary, error)
	Status() engine.StatusReport
}

// Prober is a connectivity self-test against one external collaborator.
type Prober interface {
	TestConnection(ctx context.Context) error
}

// StatusHandler serves the operational API: health, status snapshot,
// manual cycle trigger and connectivity checks.
type StatusHandler struct {
	runner Runner
	cache  cache.Cache
	cfg    *config.Config
	logger *zap.Logger
	probes map[string]Prober
}

// NewStatusHandler creates a new status handler. Probes maps a collaborator
// name (grocy, homeassistant, telegram) to its connectivity check.
func NewStatusHandler(runner Runner, c cache.Cache, cfg *config.Config, probes map[string]Prober, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		runner: runner,
		cache:  c,
		cfg:    cfg,
		logger: logger,
		probes: probes,
	}
}

// HealthCheck handles GET /healthz
func (h *StatusHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "reorder-service",
	})
}

// GetStatus handles GET /api/v1/status. The snapshot is cached briefly so a
// dashboard polling the endpoint does not contend with the evaluation cycle.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, err := h.cache.Get(ctx, statusCacheKey); err == nil {
		var report engine.StatusReport
		if err := json.Unmarshal(cached, &report); err == nil {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, report)
			return
		}
	}

	report := h.runner.Status()

	if data, err := json.Marshal(report); err == nil {
		ttl := time.Duration(h.cfg.StatusCacheTTLSec) * time.Second
		if err := h.cache.Set(ctx, statusCacheKey, data, ttl); err != nil {
			h.logger.Warn("Failed to cache status snapshot", zap.Error(err))
		}
	}

	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, report)
}

// TriggerCheck handles POST /api/v1/check and runs one evaluation cycle
// synchronously.
func (h *StatusHandler) TriggerCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), triggerCycleTimeout)
	defer cancel()

	summary, err := h.runner.RunCycle(ctx)
	if err != nil {
		h.logger.Error("Manual evaluation cycle failed", zap.Error(err))
		status := http.StatusInternalServerError
		if stdErr, ok := err.(*apperrors.StandardError); ok {
			status = stdErr.HTTPStatus()
			c.JSON(status, stdErr)
			return
		}
		c.JSON(status, apperrors.NewStandardError(apperrors.CodeInternalError, "evaluation cycle failed", err.Error()))
		return
	}

	// Status snapshot is stale after a cycle
	if err := h.cache.Delete(c.Request.Context(), statusCacheKey); err != nil {
		h.logger.Warn("Failed to invalidate status cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, summary)
}

// Connectivity handles GET /api/v1/connectivity and probes every configured
// collaborator.
func (h *StatusHandler) Connectivity(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	results := make(map[string]gin.H, len(h.probes))
	healthy := true
	for name, probe := range h.probes {
		if err := probe.TestConnection(ctx); err != nil {
			healthy = false
			results[name] = gin.H{"ok": false, "error": err.Error()}
			continue
		}
		results[name] = gin.H{"ok": true}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy": healthy,
		"checks":  results,
	})
}
