package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/monitor"
)

// HeaderAdminID carries the already authenticated admin identity set by the
// fronting proxy.
const HeaderAdminID = "X-Admin-ID"

// HealthReader exposes point-in-time health data
type HealthReader interface {
	Collect(ctx context.Context) monitor.SystemHealth
	CollectResourceUsage(ctx context.Context) monitor.ResourceUsage
	CollectPerformanceMetrics(ctx context.Context) monitor.PerformanceMetrics
}

// HealthRules is the health evaluator surface used by the API
type HealthRules interface {
	AnalyzeErrorTrends(ctx context.Context, windowHours int) monitor.ErrorTrends
	Thresholds() monitor.HealthThresholds
	SetThresholds(t monitor.HealthThresholds) error
}

// QueuePredictor estimates how long a new job would wait
type QueuePredictor interface {
	PredictQueueWait(ctx context.Context) int
}

// Checker runs monitoring cycles on demand
type Checker interface {
	ForceCheck(ctx context.Context) (monitor.CheckResult, error)
	Status() monitor.Status
}

// AlertManager is the alert engine surface used by the API
type AlertManager interface {
	GetActiveAlerts(severity *alerting.Severity) []alerting.Alert
	GetAlert(alertID string) (alerting.Alert, bool)
	GetAlertHistory(limit int) []alerting.Alert
	GetAlertStatistics() alerting.Statistics
	AcknowledgeAlert(adminID, alertID string) bool
	ResolveAlert(adminID, alertID string) bool
	Thresholds() alerting.AlertThresholds
	UpdateThresholds(t alerting.AlertThresholds) error
}

// Controller maps the /api/v1 routes onto the monitoring components
type Controller struct {
	Group *echo.Group

	health    HealthReader
	rules     HealthRules
	predictor QueuePredictor
	checker   Checker
	alerts    AlertManager
	log       logger.Logger
}

// NewController creates the controller and registers its routes on g
func NewController(g *echo.Group, health HealthReader, rules HealthRules, predictor QueuePredictor, checker Checker, alerts AlertManager) *Controller {
	c := &Controller{
		Group:     g,
		health:    health,
		rules:     rules,
		predictor: predictor,
		checker:   checker,
		alerts:    alerts,
		log:       GetLogger(),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"health routes", c.initHealthRoutes},
		{"alert routes", c.initAlertRoutes},
		{"threshold routes", c.initThresholdRoutes},
	}

	for _, initializer := range routeInitializers {
		initializer.fn()
		c.log.Debug("routes initialized", logger.String("group", initializer.name))
	}
}

// Response is the envelope for expected failures and simple acknowledgements
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// HandleError logs err and writes a failure envelope with the given status
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := Response{Success: false, Message: message}

	var ve conf.ValidationError
	if errors.As(err, &ve) {
		resp.Errors = ve.Errors
	}

	fields := []logger.Field{
		logger.String("method", ctx.Request().Method),
		logger.String("path", ctx.Path()),
		logger.Int("status", code),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	log := c.log.WithContext(ctx.Request().Context())
	if code >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Debug(message, fields...)
	}

	return ctx.JSON(code, resp)
}

func adminID(ctx echo.Context) string {
	return strings.TrimSpace(ctx.Request().Header.Get(HeaderAdminID))
}
