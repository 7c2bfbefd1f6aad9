package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/monitor"
)

// ThresholdsPayload carries both threshold sets. On update either section may
// be omitted to leave it unchanged.
type ThresholdsPayload struct {
	Health *monitor.HealthThresholds `json:"health,omitempty"`
	Alerts *alerting.AlertThresholds `json:"alerts,omitempty"`
}

func (c *Controller) initThresholdRoutes() {
	c.Group.GET("/thresholds", c.GetThresholds)
	c.Group.PUT("/thresholds", c.UpdateThresholds)
}

// GetThresholds handles GET /api/v1/thresholds
func (c *Controller) GetThresholds(ctx echo.Context) error {
	health := c.rules.Thresholds()
	alerts := c.alerts.Thresholds()
	return ctx.JSON(http.StatusOK, ThresholdsPayload{Health: &health, Alerts: &alerts})
}

// UpdateThresholds handles PUT /api/v1/thresholds. Both sections are
// validated before either is applied.
func (c *Controller) UpdateThresholds(ctx echo.Context) error {
	var payload ThresholdsPayload
	if err := ctx.Bind(&payload); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if payload.Health == nil && payload.Alerts == nil {
		return c.HandleError(ctx, nil, "no thresholds supplied", http.StatusBadRequest)
	}

	ve := conf.ValidationError{}
	if payload.Health != nil {
		if err := conf.ValidateHealthThresholds(payload.Health); err != nil {
			ve.Errors = append(ve.Errors, validationMessages(err)...)
		}
	}
	if payload.Alerts != nil {
		if err := conf.ValidateAlertThresholds(payload.Alerts); err != nil {
			ve.Errors = append(ve.Errors, validationMessages(err)...)
		}
	}
	if len(ve.Errors) > 0 {
		return c.HandleError(ctx, ve, "invalid thresholds", http.StatusBadRequest)
	}

	if payload.Health != nil {
		if err := c.rules.SetThresholds(*payload.Health); err != nil {
			return c.HandleError(ctx, err, "invalid health thresholds", http.StatusBadRequest)
		}
	}
	if payload.Alerts != nil {
		if err := c.alerts.UpdateThresholds(*payload.Alerts); err != nil {
			return c.HandleError(ctx, err, "invalid alert thresholds", http.StatusBadRequest)
		}
	}

	return c.GetThresholds(ctx)
}

func validationMessages(err error) []string {
	var ve conf.ValidationError
	if errors.As(err, &ve) {
		return ve.Errors
	}
	return []string{err.Error()}
}
