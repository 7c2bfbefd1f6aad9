package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts")
	alerts.GET("", c.GetActiveAlerts)
	alerts.GET("/stats", c.GetAlertStatistics)
	alerts.GET("/history", c.GetAlertHistory)
	alerts.GET("/:id", c.GetAlert)

	// State changes are attributed to the calling admin
	admin := alerts.Group("", RequireAdminID)
	admin.POST("/:id/acknowledge", c.AcknowledgeAlert)
	admin.POST("/:id/resolve", c.ResolveAlert)
}

// RequireAdminID rejects requests that do not carry an admin identity
func RequireAdminID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if adminID(ctx) == "" {
			return ctx.JSON(http.StatusUnauthorized, Response{
				Success: false,
				Message: "missing " + HeaderAdminID + " header",
			})
		}
		return next(ctx)
	}
}

// AlertListResponse wraps the alert list with its count
type AlertListResponse struct {
	Alerts []alerting.Alert `json:"alerts"`
	Count  int              `json:"count"`
}

// GetActiveAlerts handles GET /api/v1/alerts?severity=critical
func (c *Controller) GetActiveAlerts(ctx echo.Context) error {
	var filter *alerting.Severity
	if raw := ctx.QueryParam("severity"); raw != "" {
		sev, err := alerting.ParseSeverity(raw)
		if err != nil {
			return c.HandleError(ctx, err, "unknown severity "+strconv.Quote(raw), http.StatusBadRequest)
		}
		filter = &sev
	}

	active := c.alerts.GetActiveAlerts(filter)
	if active == nil {
		active = []alerting.Alert{}
	}
	return ctx.JSON(http.StatusOK, AlertListResponse{Alerts: active, Count: len(active)})
}

// GetAlertStatistics handles GET /api/v1/alerts/stats
func (c *Controller) GetAlertStatistics(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.alerts.GetAlertStatistics())
}

// GetAlertHistory handles GET /api/v1/alerts/history?limit=N
func (c *Controller) GetAlertHistory(ctx echo.Context) error {
	limit := defaultHistoryLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return c.HandleError(ctx, err, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
		}
		limit = n
	}

	history := c.alerts.GetAlertHistory(limit)
	if history == nil {
		history = []alerting.Alert{}
	}
	return ctx.JSON(http.StatusOK, AlertListResponse{Alerts: history, Count: len(history)})
}

// GetAlert handles GET /api/v1/alerts/:id
func (c *Controller) GetAlert(ctx echo.Context) error {
	alert, ok := c.alerts.GetAlert(ctx.Param("id"))
	if !ok {
		return c.HandleError(ctx, nil, "alert not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert handles POST /api/v1/alerts/:id/acknowledge
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	return c.transitionAlert(ctx, "acknowledged", c.alerts.AcknowledgeAlert)
}

// ResolveAlert handles POST /api/v1/alerts/:id/resolve
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	return c.transitionAlert(ctx, "resolved", c.alerts.ResolveAlert)
}

// transitionAlert applies an engine state change. A missing alert is a 404,
// an alert in the wrong state is a 409.
func (c *Controller) transitionAlert(ctx echo.Context, verb string, apply func(adminID, alertID string) bool) error {
	alertID := ctx.Param("id")
	admin := adminID(ctx)

	if apply(admin, alertID) {
		c.log.WithContext(ctx.Request().Context()).Info("alert "+verb,
			logger.String("alert_id", alertID),
			logger.String("admin_id", admin))
		return ctx.JSON(http.StatusOK, Response{Success: true, Message: "alert " + verb})
	}

	current, ok := c.alerts.GetAlert(alertID)
	if !ok {
		return c.HandleError(ctx, nil, "alert not found", http.StatusNotFound)
	}
	return c.HandleError(ctx, nil, "alert cannot be "+verb+" from status "+string(current.Status), http.StatusConflict)
}
