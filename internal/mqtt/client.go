package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

// ErrNotConnected is returned by Publish while no broker session is up
var ErrNotConnected = errors.NewStd("mqtt: not connected to broker")

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	host           string
	mu             sync.Mutex
	log            logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration. The
// underlying paho client is built here so a broker that is down at startup
// can still be reached later through connect retries.
func NewClient(cfg Config) (Client, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Host == "" {
		return nil, errors.Newf("invalid broker URL %q", cfg.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c := &client{
		config: cfg,
		host:   u.Hostname(),
		log:    GetLogger().With(logger.String("broker", u.Redacted())),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.ConnectRetryInterval)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.ConnectRetryInterval)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(paho.Client) {
		c.log.Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	})
	c.internalClient = paho.NewClient(opts)
	return c, nil
}

// Connect starts connecting and waits up to ConnectTimeout for the first
// session. On failure the client keeps retrying every ConnectRetryInterval
// until it connects or Disconnect is called. A host that does not resolve is
// reported as such instead of as a generic timeout.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	token := c.internalClient.Connect()
	c.mu.Unlock()

	if net.ParseIP(c.host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, c.host); err != nil {
			return fmt.Errorf("failed to resolve hostname %s: %w", c.host, err)
		}
	}

	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		c.log.Warn("MQTT broker not reachable yet, retrying in background",
			logger.Duration("retry_interval", c.config.ConnectRetryInterval))
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("operation", "connect").
			Build()
	}
	return nil
}

// Publish sends payload and waits for the broker acknowledgement
func (c *client) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// paho's IsConnected is also true while retrying; only publish on a live session
	if !c.internalClient.IsConnectionOpen() {
		return ErrNotConnected
	}

	c.log.Debug("publishing", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	token := c.internalClient.Publish(topic, qos, c.config.Retain, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient.IsConnectionOpen()
}

// Disconnect closes the session and stops any pending connect retries
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
}

// waitToken blocks until the token completes, ctx ends or timeout passes
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	}
}
