// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/healthmon.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("monitoring.interval", 60)
	v.SetDefault("monitoring.alert_cooldown", 300)
	v.SetDefault("monitoring.stuck_job_timeout", 3600)
	v.SetDefault("monitoring.max_concurrent_jobs", 3)
	v.SetDefault("monitoring.error_window_hours", 24)
	v.SetDefault("monitoring.disk_paths", []string{"/"})
	v.SetDefault("monitoring.store_snapshots", true)
	v.SetDefault("monitoring.snapshot_retention", 7)
	v.SetDefault("monitoring.ai_service_url", "")
	v.SetDefault("monitoring.thresholds.cpu.warning", 70.0)
	v.SetDefault("monitoring.thresholds.cpu.critical", 90.0)
	v.SetDefault("monitoring.thresholds.memory.warning", 70.0)
	v.SetDefault("monitoring.thresholds.memory.critical", 90.0)
	v.SetDefault("monitoring.thresholds.disk.warning", 80.0)
	v.SetDefault("monitoring.thresholds.disk.critical", 95.0)
	v.SetDefault("monitoring.thresholds.error_rate.warning", 5.0)
	v.SetDefault("monitoring.thresholds.error_rate.critical", 15.0)
	v.SetDefault("monitoring.thresholds.response_time.warning", 5.0)
	v.SetDefault("monitoring.thresholds.response_time.critical", 10.0)
	v.SetDefault("monitoring.thresholds.stuck_jobs", 1)
	v.SetDefault("monitoring.thresholds.failed_tasks_warning", 10)

	v.SetDefault("alerting.cooldown", 300)
	v.SetDefault("alerting.history_size", 10000)
	v.SetDefault("alerting.retention_days", 30)
	v.SetDefault("alerting.escalation_timeout", 900)
	v.SetDefault("alerting.thresholds.job_failure_rate", 0.1)
	v.SetDefault("alerting.thresholds.repeated_failure_count", 3)
	v.SetDefault("alerting.thresholds.resource_usage_threshold", 0.9)
	v.SetDefault("alerting.thresholds.queue_backup_threshold", 100)
	v.SetDefault("alerting.thresholds.ai_service_timeout", 30)
	v.SetDefault("alerting.thresholds.performance_degradation_threshold", 2.0)

	v.SetDefault("notification.max_concurrent", 4)
	v.SetDefault("notification.email.enabled", false)
	v.SetDefault("notification.email.port", 587)
	v.SetDefault("notification.email.use_tls", true)
	v.SetDefault("notification.email.recipients", []string{})
	v.SetDefault("notification.webhook.enabled", false)
	v.SetDefault("notification.webhook.timeout", 10)
	v.SetDefault("notification.in_app.enabled", true)
	v.SetDefault("notification.shoutrrr.enabled", false)
	v.SetDefault("notification.shoutrrr.urls", []string{})
	v.SetDefault("notification.circuit_breaker.enabled", true)
	v.SetDefault("notification.circuit_breaker.max_failures", 5)
	v.SetDefault("notification.circuit_breaker.timeout", 30)
	v.SetDefault("notification.rate_limit.enabled", false)
	v.SetDefault("notification.rate_limit.requests_per_minute", 60)
	v.SetDefault("notification.rate_limit.burst", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "healthmon.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "healthmon")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "healthmon")
	v.SetDefault("mqtt.client_id", "healthmon")

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", "127.0.0.1:8090")

	v.SetDefault("maintenance.schedule", "0 0 3 * * *")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.environment", "production")
}
