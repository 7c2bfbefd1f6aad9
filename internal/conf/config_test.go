package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	settings := Defaults()

	require.NoError(t, ValidateSettings(settings))
	assert.Equal(t, 60, settings.Monitoring.Interval)
	assert.Equal(t, 300, settings.Monitoring.AlertCooldown)
	assert.Equal(t, 3, settings.Monitoring.MaxConcurrentJobs)
	assert.InDelta(t, 90.0, settings.Monitoring.Thresholds.CPU.Critical, 0.001)
	assert.InDelta(t, 95.0, settings.Monitoring.Thresholds.Disk.Critical, 0.001)
	assert.Equal(t, 10000, settings.Alerting.HistorySize)
	assert.Equal(t, 30, settings.Alerting.RetentionDays)
	assert.Equal(t, 10, settings.Notification.Webhook.Timeout)
	assert.InDelta(t, 0.1, settings.Alerting.Thresholds.JobFailureRate, 0.0001)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "healthmon.yaml")
	content := `
monitoring:
  interval: 120
  thresholds:
    cpu:
      warning: 60
      critical: 85
notification:
  webhook:
    enabled: true
    url: https://hooks.example.com/alerts
    secret: shared
database:
  sqlite:
    path: ` + filepath.Join(dir, "test.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 120, settings.Monitoring.Interval)
	assert.InDelta(t, 60.0, settings.Monitoring.Thresholds.CPU.Warning, 0.001)
	assert.InDelta(t, 85.0, settings.Monitoring.Thresholds.CPU.Critical, 0.001)
	assert.InDelta(t, 70.0, settings.Monitoring.Thresholds.Memory.Warning, 0.001, "unset keys keep defaults")
	assert.True(t, settings.Notification.Webhook.Enabled)
	assert.Equal(t, "shared", settings.Notification.Webhook.Secret)
	assert.Same(t, settings, Setting())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "healthmon.yaml")
	content := `
monitoring:
  interval: 5
  alert_cooldown: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2, "both invalid fields are reported")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
