// Package mqtt publishes admin alerts to an MQTT broker.
package mqtt

import (
	"context"
	"strings"
	"time"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic with the given QoS.
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error

	IsConnected() bool

	// Disconnect closes the session and cancels background connect retries.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // prefix; alerts are published below it
	Retain   bool

	ConnectTimeout       time.Duration
	ConnectRetryInterval time.Duration // also caps the reconnect backoff
	PublishTimeout       time.Duration
	DisconnectTimeout    time.Duration
}

const defaultTopic = "healthmon"

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "healthmon",
		Topic:             defaultTopic,
		ConnectTimeout:       30 * time.Second,
		ConnectRetryInterval: 10 * time.Second,
		PublishTimeout:       10 * time.Second,
		DisconnectTimeout:    250 * time.Millisecond,
	}
}

// ConfigFromSettings fills the defaults with the configured broker
func ConfigFromSettings(s *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	if s == nil {
		return cfg
	}
	cfg.Broker = s.Broker
	cfg.Username = s.Username
	cfg.Password = s.Password
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if topic := strings.Trim(s.Topic, "/"); topic != "" {
		cfg.Topic = topic
	}
	return cfg
}

func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
