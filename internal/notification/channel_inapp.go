package notification

import (
	"context"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/logger"
)

// InAppChannel records the alert in the log and, when a sink is attached,
// publishes it to connected admins.
type InAppChannel struct {
	enabled bool
	sink    Sink
}

// NewInAppChannel creates an in-app channel. sink may be nil.
func NewInAppChannel(enabled bool, sink Sink) *InAppChannel {
	return &InAppChannel{enabled: enabled, sink: sink}
}

// GetName returns "in_app"
func (c *InAppChannel) GetName() string { return "in_app" }

// Kind returns KindInApp
func (c *InAppChannel) Kind() ChannelKind { return KindInApp }

// IsEnabled reports whether in-app delivery is on
func (c *InAppChannel) IsEnabled() bool { return c.enabled }

// ValidateConfig always succeeds; the channel has nothing to configure.
func (c *InAppChannel) ValidateConfig() error { return nil }

// Send logs the alert and hands it to the admin sink when one is set.
func (c *InAppChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	GetLogger().Info("admin alert",
		logger.String("alert_id", alert.ID),
		logger.String("alert_type", string(alert.Type)),
		logger.String("severity", string(alert.Severity)),
		logger.String("title", alert.Title))

	if c.sink == nil {
		return nil
	}
	return c.sink.PublishToAdmins(ctx, alert)
}
