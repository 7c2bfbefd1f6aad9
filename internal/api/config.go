// Package api serves the admin HTTP surface of healthmon. The server owns the
// echo instance and its middleware while the Controller maps /api/v1 routes
// onto the monitor and alert engine.
package api

import (
	"net"
	"time"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultListen          = "127.0.0.1:8090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "1M"
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port to bind

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // a forced check may take a while
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // Maximum request body size (e.g. "1M")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
	}
}

// ConfigFromSettings creates a Config from the webserver settings.
func ConfigFromSettings(settings *conf.WebServerSettings) *Config {
	cfg := DefaultConfig()
	if settings != nil && settings.Listen != "" {
		cfg.Listen = settings.Listen
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Context("listen", c.Listen).
			Build()
	}
	if c.ShutdownTimeout <= 0 {
		return errors.Newf("shutdown timeout must be positive, got %s", c.ShutdownTimeout).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
