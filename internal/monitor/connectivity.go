package monitor

import (
	"context"
	"time"

	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

// ErrUnavailable is returned by a Pinger whose dependency is not configured
var ErrUnavailable = errors.NewStd("dependency not configured")

const defaultPingTimeout = 2 * time.Second

// Pinger checks that a dependency answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity is the ConnectivityProbe built from a database and an
// optional cache pinger
type Connectivity struct {
	Database Pinger
	Cache    Pinger // nil when no cache is configured
	Timeout  time.Duration
	log      logger.Logger
}

// NewConnectivity creates a connectivity probe; cache may be nil
func NewConnectivity(database, cache Pinger) *Connectivity {
	return &Connectivity{
		Database: database,
		Cache:    cache,
		Timeout:  defaultPingTimeout,
		log:      GetLogger().Module("connectivity"),
	}
}

// PingDatabase reports healthy or error; a missing database is an error
func (c *Connectivity) PingDatabase(ctx context.Context) ComponentStatus {
	if c.Database == nil {
		return ComponentError
	}
	if err := c.ping(ctx, c.Database); err != nil {
		c.log.Error("database health check failed", logger.Error(err))
		return ComponentError
	}
	return ComponentHealthy
}

// PingCache reports healthy, error, or unavailable when no cache is configured
func (c *Connectivity) PingCache(ctx context.Context) ComponentStatus {
	if c.Cache == nil {
		return ComponentUnavailable
	}
	err := c.ping(ctx, c.Cache)
	switch {
	case err == nil:
		return ComponentHealthy
	case errors.Is(err, ErrUnavailable):
		return ComponentUnavailable
	default:
		c.log.Warn("cache health check failed", logger.Error(err))
		return ComponentError
	}
}

// OpenConnections reports the database pool size when the database pinger
// exposes it, zero otherwise
func (c *Connectivity) OpenConnections(ctx context.Context) (int, error) {
	if p, ok := c.Database.(DBStatsProvider); ok {
		return p.OpenConnections(ctx)
	}
	return 0, nil
}

// CacheMemoryBytes reports cache memory when the cache pinger exposes it
func (c *Connectivity) CacheMemoryBytes(ctx context.Context) (uint64, error) {
	if p, ok := c.Cache.(CacheInfoProvider); ok {
		return p.CacheMemoryBytes(ctx)
	}
	return 0, nil
}

func (c *Connectivity) ping(ctx context.Context, p Pinger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewStd("ping panicked")
		}
	}()
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Ping(ctx)
}
