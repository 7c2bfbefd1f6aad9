package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/healthmon/internal/alerting"
)

// alertQoS is at-least-once; admin consumers dedupe on alert_id
const alertQoS byte = 1

// AlertSink publishes alerts as JSON to <topic>/alerts. It satisfies the
// notification in-app sink.
type AlertSink struct {
	client Client
	topic  string
}

// NewAlertSink creates a sink that publishes below topic
func NewAlertSink(client Client, topic string) *AlertSink {
	if topic == "" {
		topic = defaultTopic
	}
	return &AlertSink{client: client, topic: topic + "/alerts"}
}

// Topic returns the full alert topic
func (s *AlertSink) Topic() string { return s.topic }

func (s *AlertSink) PublishToAdmins(ctx context.Context, alert *alerting.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.topic, alertQoS, payload)
}
