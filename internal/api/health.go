package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/healthmon/internal/monitor"
)

// Limits for the error trend window, in hours
const (
	defaultTrendHours = 24
	maxTrendHours     = 24 * 30
)

func (c *Controller) initHealthRoutes() {
	c.Group.GET("/health", c.GetHealth)
	c.Group.GET("/health/resources", c.GetResourceUsage)
	c.Group.GET("/performance", c.GetPerformance)
	c.Group.GET("/errors/trends", c.GetErrorTrends)
	c.Group.POST("/check", c.ForceCheck)
	c.Group.GET("/status", c.GetMonitorStatus)
}

// GetHealth handles GET /api/v1/health
func (c *Controller) GetHealth(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.health.Collect(ctx.Request().Context()))
}

// GetResourceUsage handles GET /api/v1/health/resources
func (c *Controller) GetResourceUsage(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.health.CollectResourceUsage(ctx.Request().Context()))
}

// PerformanceResponse adds the queue wait prediction to the performance metrics
type PerformanceResponse struct {
	Metrics           monitor.PerformanceMetrics `json:"metrics"`
	PredictedWaitSecs int                        `json:"predicted_wait_seconds"`
}

// GetPerformance handles GET /api/v1/performance
func (c *Controller) GetPerformance(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	return ctx.JSON(http.StatusOK, PerformanceResponse{
		Metrics:           c.health.CollectPerformanceMetrics(reqCtx),
		PredictedWaitSecs: c.predictor.PredictQueueWait(reqCtx),
	})
}

// GetErrorTrends handles GET /api/v1/errors/trends?hours=N
func (c *Controller) GetErrorTrends(ctx echo.Context) error {
	hours := defaultTrendHours
	if raw := ctx.QueryParam("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTrendHours {
			return c.HandleError(ctx, err, "hours must be an integer between 1 and 720", http.StatusBadRequest)
		}
		hours = n
	}
	return ctx.JSON(http.StatusOK, c.rules.AnalyzeErrorTrends(ctx.Request().Context(), hours))
}

// ForceCheck handles POST /api/v1/check
func (c *Controller) ForceCheck(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	result, err := c.checker.ForceCheck(reqCtx)
	if err != nil {
		if reqCtx.Err() != nil {
			return c.HandleError(ctx, err, "health check cancelled", http.StatusServiceUnavailable)
		}
		return c.HandleError(ctx, err, "health check failed", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetMonitorStatus handles GET /api/v1/status
func (c *Controller) GetMonitorStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.checker.Status())
}
