// Package conf loads and validates healthmon settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

const (
	configName = "healthmon"
	envPrefix  = "HEALTHMON"
)

// Settings is the root configuration structure
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"` // true to enable debug logging

	Logging      logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Monitoring   MonitoringSettings   `mapstructure:"monitoring" yaml:"monitoring"`
	Alerting     AlertingSettings     `mapstructure:"alerting" yaml:"alerting"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	Database     DatabaseSettings     `mapstructure:"database" yaml:"database"`
	Cache        CacheSettings        `mapstructure:"cache" yaml:"cache"`
	MQTT         MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	WebServer    WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	Maintenance  MaintenanceSettings  `mapstructure:"maintenance" yaml:"maintenance"`
	Sentry       SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
}

// MonitoringSettings controls the background health check loop
type MonitoringSettings struct {
	Interval          int                     `mapstructure:"interval" yaml:"interval"`                       // seconds between health checks, 30-3600
	AlertCooldown     int                     `mapstructure:"alert_cooldown" yaml:"alert_cooldown"`           // per alert type cooldown in seconds, 60-7200
	StuckJobTimeout   int                     `mapstructure:"stuck_job_timeout" yaml:"stuck_job_timeout"`     // seconds a job may run before it is stuck
	MaxConcurrentJobs int                     `mapstructure:"max_concurrent_jobs" yaml:"max_concurrent_jobs"` // worker slots used for queue wait prediction
	ErrorWindowHours  int                     `mapstructure:"error_window_hours" yaml:"error_window_hours"`   // error trend analysis window
	DiskPaths         []string                `mapstructure:"disk_paths" yaml:"disk_paths"`                   // paths whose filesystems are checked, worst mount wins
	StoreSnapshots    bool                    `mapstructure:"store_snapshots" yaml:"store_snapshots"`         // persist each health snapshot
	SnapshotRetention int                     `mapstructure:"snapshot_retention" yaml:"snapshot_retention"`   // days of snapshots to keep
	AIServiceURL      string                  `mapstructure:"ai_service_url" yaml:"ai_service_url"`           // health endpoint of the AI service, empty disables the latency probe
	Thresholds        HealthThresholdSettings `mapstructure:"thresholds" yaml:"thresholds"`
}

// ThresholdPair is a warning/critical boundary for one measurement
type ThresholdPair struct {
	Warning  float64 `mapstructure:"warning" yaml:"warning" json:"warning"`
	Critical float64 `mapstructure:"critical" yaml:"critical" json:"critical"`
}

// HealthThresholdSettings holds per-resource warning and critical levels
type HealthThresholdSettings struct {
	CPU                ThresholdPair `mapstructure:"cpu" yaml:"cpu" json:"cpu"`                               // percent
	Memory             ThresholdPair `mapstructure:"memory" yaml:"memory" json:"memory"`                      // percent
	Disk               ThresholdPair `mapstructure:"disk" yaml:"disk" json:"disk"`                            // percent
	ErrorRate          ThresholdPair `mapstructure:"error_rate" yaml:"error_rate" json:"error_rate"`          // percent of created jobs failing
	ResponseTime       ThresholdPair `mapstructure:"response_time" yaml:"response_time" json:"response_time"` // seconds
	StuckJobs          int           `mapstructure:"stuck_jobs" yaml:"stuck_jobs" json:"stuck_jobs"`          // stuck job count that raises an alert
	FailedTasksWarning int           `mapstructure:"failed_tasks_warning" yaml:"failed_tasks_warning" json:"failed_tasks_warning"`
}

// AlertingSettings controls alert deduplication, history and escalation
type AlertingSettings struct {
	Cooldown          int                    `mapstructure:"cooldown" yaml:"cooldown"`                     // seconds an identical alert is folded into the existing one
	HistorySize       int                    `mapstructure:"history_size" yaml:"history_size"`             // alert history ring capacity
	RetentionDays     int                    `mapstructure:"retention_days" yaml:"retention_days"`         // resolved alerts older than this are cleaned up
	EscalationTimeout int                    `mapstructure:"escalation_timeout" yaml:"escalation_timeout"` // seconds before an unacknowledged critical alert escalates
	Thresholds        AlertThresholdSettings `mapstructure:"thresholds" yaml:"thresholds"`
}

// AlertThresholdSettings are the admin adjustable alert thresholds
type AlertThresholdSettings struct {
	JobFailureRate                  float64 `mapstructure:"job_failure_rate" yaml:"job_failure_rate" json:"job_failure_rate"`
	RepeatedFailureCount            int     `mapstructure:"repeated_failure_count" yaml:"repeated_failure_count" json:"repeated_failure_count"`
	ResourceUsageThreshold          float64 `mapstructure:"resource_usage_threshold" yaml:"resource_usage_threshold" json:"resource_usage_threshold"`
	QueueBackupThreshold            int     `mapstructure:"queue_backup_threshold" yaml:"queue_backup_threshold" json:"queue_backup_threshold"`
	AIServiceTimeout                int     `mapstructure:"ai_service_timeout" yaml:"ai_service_timeout" json:"ai_service_timeout"`
	PerformanceDegradationThreshold float64 `mapstructure:"performance_degradation_threshold" yaml:"performance_degradation_threshold" json:"performance_degradation_threshold"`
}

// NotificationSettings configures the alert delivery channels
type NotificationSettings struct {
	MaxConcurrent  int                    `mapstructure:"max_concurrent" yaml:"max_concurrent"` // in-flight async dispatches
	Email          EmailSettings          `mapstructure:"email" yaml:"email"`
	Webhook        WebhookSettings        `mapstructure:"webhook" yaml:"webhook"`
	InApp          InAppSettings          `mapstructure:"in_app" yaml:"in_app"`
	Shoutrrr       ShoutrrrSettings       `mapstructure:"shoutrrr" yaml:"shoutrrr"`
	CircuitBreaker CircuitBreakerSettings `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	RateLimit      RateLimitSettings      `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// EmailSettings configures SMTP delivery
type EmailSettings struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Host       string   `mapstructure:"host" yaml:"host"`
	Port       int      `mapstructure:"port" yaml:"port"`
	Username   string   `mapstructure:"username" yaml:"username"`
	Password   string   `mapstructure:"password" yaml:"password"`
	From       string   `mapstructure:"from" yaml:"from"`
	Recipients []string `mapstructure:"recipients" yaml:"recipients"`
	UseTLS     bool     `mapstructure:"use_tls" yaml:"use_tls"` // STARTTLS
}

// WebhookSettings configures HTTP POST delivery
type WebhookSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Secret  string `mapstructure:"secret" yaml:"secret"`   // sent as X-Webhook-Secret
	Timeout int    `mapstructure:"timeout" yaml:"timeout"` // seconds
}

// InAppSettings toggles delivery to the admin notification sink
type InAppSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ShoutrrrSettings lists extra shoutrrr service URLs (slack://, telegram://, ...)
type ShoutrrrSettings struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	URLs    []string `mapstructure:"urls" yaml:"urls"`
}

// CircuitBreakerSettings protects the dispatcher from a persistently failing channel
type CircuitBreakerSettings struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	MaxFailures int  `mapstructure:"max_failures" yaml:"max_failures"`
	Timeout     int  `mapstructure:"timeout" yaml:"timeout"` // seconds the circuit stays open
}

// RateLimitSettings caps per-channel delivery rate
type RateLimitSettings struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// DatabaseSettings selects the job store backend
type DatabaseSettings struct {
	Driver string         `mapstructure:"driver" yaml:"driver"` // sqlite or mysql
	SQLite SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL  MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
}

type SQLiteSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MySQLSettings struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// CacheSettings configures the optional Redis cache probe
type CacheSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// MQTTSettings configures the admin notification sink
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"` // tcp://host:port
	Topic    string `mapstructure:"topic" yaml:"topic"`   // topic prefix, alerts go to <topic>/alerts
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// WebServerSettings configures the admin HTTP API
type WebServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// MaintenanceSettings schedules periodic cleanup jobs
type MaintenanceSettings struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"` // cron expression with seconds field
}

// SentrySettings enables error telemetry
type SentrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration from configPath, or from the default search
// paths when configPath is empty, applies HEALTHMON_* environment overrides
// and validates the result. A missing config file is not an error.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.New()
	if err := initViper(v, configPath); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_path", configPath).
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets defaults, environment binding and reads the config file
func initViper(v *viper.Viper, configPath string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, path := range defaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// defaultConfigPaths returns the directories searched for healthmon.yaml
func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "healthmon"))
	}
	return append(paths, "/etc/healthmon")
}

// Setting returns the most recently loaded settings, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Defaults returns a settings struct populated only with default values.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	_ = v.Unmarshal(settings)
	return settings
}
