// Package telemetry wires optional Sentry error reporting. Nothing is sent
// unless sentry is explicitly enabled with a DSN.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

const defaultFlushTimeout = 2 * time.Second

var initialized atomic.Bool

// Options holds values not taken from configuration
type Options struct {
	Release   string
	Transport sentry.Transport // tests only
}

// InitSentry initializes the Sentry SDK and installs the error reporter.
// It returns false when telemetry is disabled.
func InitSentry(settings *conf.SentrySettings, opts Options) (bool, error) {
	log := GetLogger()
	if settings == nil || !settings.Enabled {
		log.Info("sentry telemetry is disabled")
		return false, nil
	}
	if settings.DSN == "" {
		return false, errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	env := settings.Environment
	if env == "" {
		env = "production"
	}
	release := "healthmon"
	if opts.Release != "" {
		release = "healthmon@" + opts.Release
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Environment:      env,
		Release:          release,
		SampleRate:       1.0,
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        opts.Transport,
		BeforeSend:       applyPrivacyFilters,
	})
	if err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)
	log.Info("sentry telemetry enabled",
		logger.String("environment", env),
		logger.String("release", release))
	return true, nil
}

// applyPrivacyFilters strips host identity and scrubs credentials from messages
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	event.Message = errors.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Flush waits for buffered events and detaches the reporter
func Flush(timeout time.Duration) bool {
	if !initialized.Swap(false) {
		return true
	}
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	errors.SetTelemetryReporter(nil)
	return sentry.Flush(timeout)
}

func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
