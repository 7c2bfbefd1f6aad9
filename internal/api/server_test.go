package api

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/observability"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"any interface", func(c *Config) { c.Listen = ":9090" }, false},
		{"missing port", func(c *Config) { c.Listen = "localhost" }, true},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultListen, ConfigFromSettings(nil).Listen)
	assert.Equal(t, DefaultListen, ConfigFromSettings(&conf.WebServerSettings{}).Listen)
	assert.Equal(t, "0.0.0.0:9000", ConfigFromSettings(&conf.WebServerSettings{Listen: "0.0.0.0:9000"}).Listen)
}

func TestNewServerRequiresComponents(t *testing.T) {
	t.Parallel()

	_, err := NewServer(DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestServerStartShutdown(t *testing.T) {
	t.Parallel()

	engine, err := alerting.NewEngine(alerting.DefaultEngineConfig(), nil)
	require.NoError(t, err)
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	fm := newFakeMonitor()

	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s, err := NewServer(cfg, WithMonitor(fm, fm, fm, fm), WithAlerts(engine), WithMetrics(m))
	require.NoError(t, err)
	require.NotNil(t, s.Controller())

	s.Start()
	require.Eventually(t, func() bool { return s.Echo().ListenerAddr() != nil },
		2*time.Second, 10*time.Millisecond, "server did not start listening")
	base := "http://" + s.Echo().ListenerAddr().String()

	for _, path := range []string{"/api/v1/health", "/api/v1/status", "/metrics"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		_, _ = io.Copy(io.Discard, resp.Body)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
	}

	require.NoError(t, s.Shutdown(t.Context()))
	select {
	case err := <-s.Err():
		t.Fatalf("unexpected serve error: %v", err)
	default:
	}
}
