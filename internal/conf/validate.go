package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Allowed ranges for monitoring cadence, in seconds
const (
	MinMonitoringInterval = 30
	MaxMonitoringInterval = 3600
	MinAlertCooldown      = 60
	MaxAlertCooldown      = 7200
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

func (ve *ValidationError) add(format string, args ...any) {
	ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
}

func (ve *ValidationError) merge(err error) {
	if err == nil {
		return
	}
	if other, ok := err.(ValidationError); ok {
		ve.Errors = append(ve.Errors, other.Errors...)
		return
	}
	ve.Errors = append(ve.Errors, err.Error())
}

func (ve ValidationError) orNil() error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return ve
}

// ValidateSettings validates the entire Settings struct and reports every
// invalid field at once
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.merge(validateMonitoringSettings(&settings.Monitoring))
	ve.merge(ValidateHealthThresholds(&settings.Monitoring.Thresholds))
	ve.merge(validateAlertingSettings(&settings.Alerting))
	ve.merge(ValidateAlertThresholds(&settings.Alerting.Thresholds))
	ve.merge(validateNotificationSettings(&settings.Notification))
	ve.merge(validateDatabaseSettings(&settings.Database))
	ve.merge(validateMaintenanceSettings(&settings.Maintenance))

	if settings.MQTT.Enabled && settings.MQTT.Broker == "" {
		ve.add("mqtt.broker: required when mqtt is enabled")
	}
	if settings.Cache.Enabled && settings.Cache.Address == "" {
		ve.add("cache.address: required when cache is enabled")
	}
	if !IsValidLogLevel(settings.Logging.DefaultLevel) {
		ve.add("logging.default_level: must be one of %v, got %q", validLogLevels, settings.Logging.DefaultLevel)
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.add("sentry.dsn: required when sentry is enabled")
	}

	return ve.orNil()
}

func validateMonitoringSettings(m *MonitoringSettings) error {
	ve := ValidationError{}

	if m.Interval < MinMonitoringInterval || m.Interval > MaxMonitoringInterval {
		ve.add("monitoring.interval: must be between %d and %d seconds, got %d", MinMonitoringInterval, MaxMonitoringInterval, m.Interval)
	}
	if m.AlertCooldown < MinAlertCooldown || m.AlertCooldown > MaxAlertCooldown {
		ve.add("monitoring.alert_cooldown: must be between %d and %d seconds, got %d", MinAlertCooldown, MaxAlertCooldown, m.AlertCooldown)
	}
	if m.StuckJobTimeout <= 0 {
		ve.add("monitoring.stuck_job_timeout: must be positive, got %d", m.StuckJobTimeout)
	}
	if m.MaxConcurrentJobs < 1 {
		ve.add("monitoring.max_concurrent_jobs: must be at least 1, got %d", m.MaxConcurrentJobs)
	}
	if m.ErrorWindowHours < 1 {
		ve.add("monitoring.error_window_hours: must be at least 1, got %d", m.ErrorWindowHours)
	}
	if m.StoreSnapshots && m.SnapshotRetention < 1 {
		ve.add("monitoring.snapshot_retention: must be at least 1 day, got %d", m.SnapshotRetention)
	}

	return ve.orNil()
}

// ValidateHealthThresholds checks per-resource threshold pairs. It is used
// both at load time and when an admin updates thresholds at runtime.
func ValidateHealthThresholds(t *HealthThresholdSettings) error {
	ve := ValidationError{}

	percentPairs := []struct {
		name string
		pair ThresholdPair
	}{
		{"cpu", t.CPU},
		{"memory", t.Memory},
		{"disk", t.Disk},
		{"error_rate", t.ErrorRate},
	}
	for _, p := range percentPairs {
		if p.pair.Warning < 0 || p.pair.Warning > 100 {
			ve.add("thresholds.%s.warning: must be between 0 and 100, got %v", p.name, p.pair.Warning)
		}
		if p.pair.Critical < 0 || p.pair.Critical > 100 {
			ve.add("thresholds.%s.critical: must be between 0 and 100, got %v", p.name, p.pair.Critical)
		}
		if p.pair.Warning >= p.pair.Critical {
			ve.add("thresholds.%s: warning (%v) must be below critical (%v)", p.name, p.pair.Warning, p.pair.Critical)
		}
	}

	if t.ResponseTime.Warning <= 0 {
		ve.add("thresholds.response_time.warning: must be positive, got %v", t.ResponseTime.Warning)
	}
	if t.ResponseTime.Warning >= t.ResponseTime.Critical {
		ve.add("thresholds.response_time: warning (%v) must be below critical (%v)", t.ResponseTime.Warning, t.ResponseTime.Critical)
	}
	if t.StuckJobs < 1 {
		ve.add("thresholds.stuck_jobs: must be at least 1, got %d", t.StuckJobs)
	}
	if t.FailedTasksWarning < 0 {
		ve.add("thresholds.failed_tasks_warning: must not be negative, got %d", t.FailedTasksWarning)
	}

	return ve.orNil()
}

// ValidateAlertThresholds checks the admin adjustable alert thresholds
func ValidateAlertThresholds(t *AlertThresholdSettings) error {
	ve := ValidationError{}

	if t.JobFailureRate < 0 || t.JobFailureRate > 1 {
		ve.add("job_failure_rate: must be between 0 and 1, got %v", t.JobFailureRate)
	}
	if t.RepeatedFailureCount < 1 {
		ve.add("repeated_failure_count: must be at least 1, got %d", t.RepeatedFailureCount)
	}
	if t.ResourceUsageThreshold < 0 || t.ResourceUsageThreshold > 1 {
		ve.add("resource_usage_threshold: must be between 0 and 1, got %v", t.ResourceUsageThreshold)
	}
	if t.QueueBackupThreshold < 1 {
		ve.add("queue_backup_threshold: must be at least 1, got %d", t.QueueBackupThreshold)
	}
	if t.AIServiceTimeout < 1 {
		ve.add("ai_service_timeout: must be at least 1 second, got %d", t.AIServiceTimeout)
	}
	if t.PerformanceDegradationThreshold <= 1 {
		ve.add("performance_degradation_threshold: must be greater than 1, got %v", t.PerformanceDegradationThreshold)
	}

	return ve.orNil()
}

func validateAlertingSettings(a *AlertingSettings) error {
	ve := ValidationError{}

	if a.Cooldown < 0 {
		ve.add("alerting.cooldown: must not be negative, got %d", a.Cooldown)
	}
	if a.HistorySize < 1 {
		ve.add("alerting.history_size: must be at least 1, got %d", a.HistorySize)
	}
	if a.RetentionDays < 1 {
		ve.add("alerting.retention_days: must be at least 1, got %d", a.RetentionDays)
	}
	if a.EscalationTimeout < 1 {
		ve.add("alerting.escalation_timeout: must be at least 1 second, got %d", a.EscalationTimeout)
	}

	return ve.orNil()
}

func validateNotificationSettings(n *NotificationSettings) error {
	ve := ValidationError{}

	if n.MaxConcurrent < 1 {
		ve.add("notification.max_concurrent: must be at least 1, got %d", n.MaxConcurrent)
	}

	if n.Email.Enabled {
		if n.Email.Host == "" {
			ve.add("notification.email.host: required when email is enabled")
		}
		if n.Email.Port < 1 || n.Email.Port > 65535 {
			ve.add("notification.email.port: must be between 1 and 65535, got %d", n.Email.Port)
		}
		if n.Email.From == "" {
			ve.add("notification.email.from: required when email is enabled")
		}
	}

	if n.Webhook.Enabled {
		u, err := url.Parse(n.Webhook.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			ve.add("notification.webhook.url: must be an absolute http(s) URL, got %q", n.Webhook.URL)
		}
		if n.Webhook.Timeout < 1 {
			ve.add("notification.webhook.timeout: must be at least 1 second, got %d", n.Webhook.Timeout)
		}
	}

	if n.Shoutrrr.Enabled {
		if len(n.Shoutrrr.URLs) == 0 {
			ve.add("notification.shoutrrr.urls: at least one URL required when shoutrrr is enabled")
		}
		for i, raw := range n.Shoutrrr.URLs {
			if !strings.Contains(raw, "://") {
				ve.add("notification.shoutrrr.urls[%d]: not a service URL", i)
			}
		}
	}

	if n.CircuitBreaker.Enabled {
		if n.CircuitBreaker.MaxFailures < 1 {
			ve.add("notification.circuit_breaker.max_failures: must be at least 1, got %d", n.CircuitBreaker.MaxFailures)
		}
		if n.CircuitBreaker.Timeout < 1 {
			ve.add("notification.circuit_breaker.timeout: must be at least 1 second, got %d", n.CircuitBreaker.Timeout)
		}
	}

	if n.RateLimit.Enabled && (n.RateLimit.RequestsPerMinute < 1 || n.RateLimit.Burst < 1) {
		ve.add("notification.rate_limit: requests_per_minute and burst must be at least 1")
	}

	return ve.orNil()
}

func validateDatabaseSettings(d *DatabaseSettings) error {
	ve := ValidationError{}

	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			ve.add("database.sqlite.path: required for sqlite driver")
		}
	case "mysql":
		if d.MySQL.Host == "" || d.MySQL.Database == "" {
			ve.add("database.mysql: host and database are required for mysql driver")
		}
	default:
		ve.add("database.driver: must be one of %v, got %q", []string{"sqlite", "mysql"}, d.Driver)
	}

	return ve.orNil()
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronParser returns the parser used for maintenance schedules (seconds field enabled)
func CronParser() cron.Parser {
	return cronParser
}

func validateMaintenanceSettings(m *MaintenanceSettings) error {
	if m.Schedule == "" {
		return nil
	}
	if _, err := cronParser.Parse(m.Schedule); err != nil {
		return ValidationError{Errors: []string{fmt.Sprintf("maintenance.schedule: invalid cron expression %q: %v", m.Schedule, err)}}
	}
	return nil
}

// validLogLevels lists accepted logging levels
var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// IsValidLogLevel reports whether level is a known log level
func IsValidLogLevel(level string) bool {
	return slices.Contains(validLogLevels, level)
}
