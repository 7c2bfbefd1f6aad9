package notification

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig caps how often a single channel is called
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// DefaultRateLimitConfig allows one delivery per second on average with
// bursts of ten
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 60, Burst: 10}
}

// newChannelLimiter builds a token bucket for one channel. Zero values fall
// back to the defaults.
func newChannelLimiter(cfg RateLimitConfig) *rate.Limiter {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.Burst)
}
