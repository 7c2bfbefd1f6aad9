// Package notification delivers alerts to email, webhook, in-app and
// shoutrrr channels. Each channel is isolated: one failing channel never
// prevents delivery through the others.
package notification

import (
	"context"
	"time"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/errors"
)

// ChannelKind identifies a delivery mechanism
type ChannelKind string

const (
	KindEmail    ChannelKind = "email"
	KindWebhook  ChannelKind = "webhook"
	KindInApp    ChannelKind = "in_app"
	KindShoutrrr ChannelKind = "shoutrrr"
)

// Channel delivers alerts through one mechanism
type Channel interface {
	GetName() string
	Kind() ChannelKind
	// ValidateConfig checks the channel settings once at startup
	ValidateConfig() error
	Send(ctx context.Context, alert *alerting.Alert) error
	IsEnabled() bool
}

// Sink pushes alerts to connected administrators. The transport is owned
// by the embedding application.
type Sink interface {
	PublishToAdmins(ctx context.Context, alert *alerting.Alert) error
}

// ErrNothingToSend is returned by a channel that had no recipients. The
// dispatcher reports it as skipped rather than failed.
var ErrNothingToSend = errors.NewStd("notification: channel has no recipients")

// DeliveryStatus is the per channel outcome of a dispatch
type DeliveryStatus string

const (
	StatusDelivered   DeliveryStatus = "delivered"
	StatusFailed      DeliveryStatus = "failed"
	StatusSkipped     DeliveryStatus = "skipped"
	StatusCircuitOpen DeliveryStatus = "circuit_open"
	StatusRateLimited DeliveryStatus = "rate_limited"
)

// ChannelResult is the outcome of one channel
type ChannelResult struct {
	Channel  string         `json:"channel"`
	Kind     ChannelKind    `json:"kind"`
	Status   DeliveryStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	err      error
}

// Err returns the delivery error, if any
func (r ChannelResult) Err() error { return r.err }

// DispatchReport lists the outcome of every configured channel
type DispatchReport struct {
	AlertID string          `json:"alert_id"`
	Results []ChannelResult `json:"results"`
}

// Count returns the number of channels that ended with status
func (r DispatchReport) Count(status DeliveryStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}
