package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/conf"
)

func isMosquittoTestServerAvailable() bool {
	conn, err := net.DialTimeout("tcp", "test.mosquitto.org:1883", 3*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromSettings(&conf.MQTTSettings{
		Broker:   "tcp://broker.local:1883",
		Topic:    "/ops/healthmon/",
		Username: "hm",
		Password: "secret",
	})
	assert.Equal(t, "tcp://broker.local:1883", cfg.Broker)
	assert.Equal(t, "ops/healthmon", cfg.Topic)
	assert.Equal(t, "healthmon", cfg.ClientID)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)

	assert.Equal(t, DefaultConfig(), ConfigFromSettings(nil))
}

func TestNewClientRejectsBadBroker(t *testing.T) {
	t.Parallel()

	for _, broker := range []string{"", "not a url", "://missing-scheme"} {
		_, err := NewClient(Config{Broker: broker})
		require.Error(t, err, broker)
	}
}

func TestPublishBeforeConnect(t *testing.T) {
	t.Parallel()

	c, err := NewClient(ConfigFromSettings(&conf.MQTTSettings{Broker: "tcp://127.0.0.1:1883"}))
	require.NoError(t, err)
	assert.False(t, c.IsConnected())

	err = c.Publish(t.Context(), "healthmon/alerts", 1, []byte("{}"))
	require.ErrorIs(t, err, ErrNotConnected)
	c.Disconnect()
}

func TestConnectUnresolvableHost(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("requires DNS")
	}

	c, err := NewClient(Config{Broker: "tcp://unresolvable.invalid:1883", ConnectTimeout: time.Second})
	require.NoError(t, err)
	defer c.Disconnect()
	require.Error(t, c.Connect(t.Context()))
	assert.False(t, c.IsConnected())
}

// fakeBroker speaks just enough MQTT for connect, QoS 1 publish and ping.
type fakeBroker struct {
	ln     net.Listener
	mu     sync.Mutex
	topics []string
	conns  sync.WaitGroup
}

func startFakeBroker(t *testing.T, addr string) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	b := &fakeBroker{ln: ln}
	go b.accept()
	t.Cleanup(func() {
		_ = ln.Close()
		b.conns.Wait()
	})
	return b
}

func (b *fakeBroker) accept() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.conns.Go(func() { b.serve(conn) })
	}
}

func (b *fakeBroker) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := cp.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			err = ack.Write(conn)
		case *packets.PublishPacket:
			b.mu.Lock()
			b.topics = append(b.topics, p.TopicName)
			b.mu.Unlock()
			if p.Qos > 0 {
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = p.MessageID
				err = ack.Write(conn)
			}
		case *packets.PingreqPacket:
			err = packets.NewControlPacket(packets.Pingresp).Write(conn)
		case *packets.DisconnectPacket:
			return
		}
		if err != nil {
			return
		}
	}
}

func (b *fakeBroker) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.topics...)
}

// freeAddr returns a loopback address nothing is listening on
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestConnectRecoversWhenBrokerStartsLater(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	cfg := DefaultConfig()
	cfg.Broker = "tcp://" + addr
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.ConnectRetryInterval = 50 * time.Millisecond
	cfg.PublishTimeout = 2 * time.Second

	c, err := NewClient(cfg)
	require.NoError(t, err)
	defer c.Disconnect()

	require.Error(t, c.Connect(t.Context()), "nothing listens on %s yet", addr)
	assert.False(t, c.IsConnected())
	require.ErrorIs(t, c.Publish(t.Context(), "healthmon/alerts", 1, []byte("{}")), ErrNotConnected)

	broker := startFakeBroker(t, addr)

	require.Eventually(t, c.IsConnected, 5*time.Second, 20*time.Millisecond,
		"client should connect once the broker is up")

	sink := NewAlertSink(c, "healthmon")
	require.NoError(t, sink.PublishToAdmins(t.Context(), &alerting.Alert{ID: "late", Title: "broker came up"}))
	assert.Equal(t, []string{"healthmon/alerts"}, broker.published())
}

type recordingClient struct {
	mu       sync.Mutex
	topic    string
	qos      byte
	payloads [][]byte
	err      error
}

func (r *recordingClient) Connect(context.Context) error { return nil }
func (r *recordingClient) IsConnected() bool             { return true }
func (r *recordingClient) Disconnect()                   {}

func (r *recordingClient) Publish(_ context.Context, topic string, qos byte, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic, r.qos = topic, qos
	r.payloads = append(r.payloads, payload)
	return r.err
}

func TestAlertSink(t *testing.T) {
	t.Parallel()

	rec := &recordingClient{}
	sink := NewAlertSink(rec, "ops")
	assert.Equal(t, "ops/alerts", sink.Topic())

	alert := &alerting.Alert{
		ID:       "f00d",
		Type:     alerting.TypeSystemError,
		Severity: alerting.SeverityCritical,
		Title:    "Database connectivity lost",
	}
	require.NoError(t, sink.PublishToAdmins(t.Context(), alert))

	require.Len(t, rec.payloads, 1)
	assert.Equal(t, "ops/alerts", rec.topic)
	assert.Equal(t, byte(1), rec.qos)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.payloads[0], &got))
	assert.Equal(t, "f00d", got["id"])
	assert.Equal(t, "system_error", got["alert_type"])

	rec.err = errors.New("broker gone")
	require.Error(t, sink.PublishToAdmins(t.Context(), alert))

	assert.Equal(t, "healthmon/alerts", NewAlertSink(rec, "").Topic())
}

func TestPublishToPublicBroker(t *testing.T) {
	if testing.Short() || !isMosquittoTestServerAvailable() {
		t.Skip("test.mosquitto.org not reachable")
	}

	cfg := DefaultConfig()
	cfg.Broker = "tcp://test.mosquitto.org:1883"
	cfg.ClientID = "healthmon-test-" + time.Now().Format("150405.000")
	c, err := NewClient(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()
	require.True(t, c.IsConnected())

	sink := NewAlertSink(c, "healthmon-test")
	require.NoError(t, sink.PublishToAdmins(ctx, &alerting.Alert{ID: "live", Title: "test"}))
}
