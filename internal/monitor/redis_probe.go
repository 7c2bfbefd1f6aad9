package monitor

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tphakala/healthmon/internal/conf"
)

// RedisProbe checks a Redis cache. A nil client reports ErrUnavailable.
type RedisProbe struct {
	client *redis.Client
}

// NewRedisClient creates a client for the configured cache, or nil when the
// cache is disabled
func NewRedisClient(cfg *conf.CacheSettings) *redis.Client {
	if !cfg.Enabled || cfg.Address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   1,
	})
}

func NewRedisProbe(client *redis.Client) *RedisProbe {
	return &RedisProbe{client: client}
}

func (r *RedisProbe) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrUnavailable
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// CacheMemoryBytes returns used_memory from INFO memory
func (r *RedisProbe) CacheMemoryBytes(ctx context.Context) (uint64, error) {
	if r == nil || r.client == nil {
		return 0, ErrUnavailable
	}
	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, fmt.Errorf("redis info: %w", err)
	}
	return parseUsedMemory(info)
}

// Close releases the client connection pool
func (r *RedisProbe) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func parseUsedMemory(info string) (uint64, error) {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		value, found := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "used_memory:")
		if !found {
			continue
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse used_memory %q: %w", value, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("used_memory not found in redis info")
}
