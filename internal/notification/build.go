package notification

import (
	"time"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

// BuildChannels creates the channels enabled in settings. A channel whose
// configuration does not validate is logged and left out.
func BuildChannels(settings *conf.NotificationSettings, sink Sink) []Channel {
	if settings == nil {
		return nil
	}

	candidates := []Channel{
		NewEmailChannel(settings.Email.Enabled, EmailSettings{
			Host:       settings.Email.Host,
			Port:       settings.Email.Port,
			Username:   settings.Email.Username,
			Password:   settings.Email.Password,
			From:       settings.Email.From,
			Recipients: settings.Email.Recipients,
			UseTLS:     settings.Email.UseTLS,
		}),
		NewWebhookChannel(settings.Webhook.Enabled, settings.Webhook.URL, settings.Webhook.Secret,
			time.Duration(settings.Webhook.Timeout)*time.Second, nil),
		NewInAppChannel(settings.InApp.Enabled, sink),
		NewShoutrrrChannel("shoutrrr", settings.Shoutrrr.Enabled, settings.Shoutrrr.URLs, 0),
	}

	log := GetLogger()
	channels := make([]Channel, 0, len(candidates))
	for _, ch := range candidates {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.ValidateConfig(); err != nil {
			log.Error("notification channel disabled by invalid configuration",
				logger.String("channel", ch.GetName()),
				logger.Error(sanitizeError(err)))
			continue
		}
		channels = append(channels, ch)
	}
	return channels
}

// NewDispatcherFromSettings builds the channels and a dispatcher with the
// configured breaker, rate limit and concurrency.
func NewDispatcherFromSettings(settings *conf.NotificationSettings, sink Sink, m *metrics.NotificationMetrics) *Dispatcher {
	opts := []DispatcherOption{WithDispatcherMetrics(m)}
	if settings == nil {
		return NewDispatcher(nil, opts...)
	}

	opts = append(opts, WithMaxConcurrent(settings.MaxConcurrent))
	if cb := settings.CircuitBreaker; cb.Enabled {
		cfg := DefaultCircuitBreakerConfig()
		if cb.MaxFailures > 0 {
			cfg.MaxFailures = cb.MaxFailures
		}
		if cb.Timeout > 0 {
			cfg.Timeout = time.Duration(cb.Timeout) * time.Second
		}
		opts = append(opts, WithCircuitBreaker(cfg))
	}
	if rl := settings.RateLimit; rl.Enabled {
		opts = append(opts, WithRateLimit(RateLimitConfig{RequestsPerMinute: rl.RequestsPerMinute, Burst: rl.Burst}))
	}

	d := NewDispatcher(BuildChannels(settings, sink), opts...)
	GetLogger().Info("notification dispatcher ready", logger.Any("channels", d.Channels()))
	return d
}
