package errors

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives built errors for external reporting
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu     sync.RWMutex
	globalReporter TelemetryReporter
)

// SetTelemetryReporter installs the reporter used by Build. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := globalReporter
	reporterMu.RUnlock()

	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// SentryReporter forwards errors to Sentry. The Sentry client itself is
// initialized by the telemetry package.
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError captures the error once, tagged with component and category
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := ScrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = ScrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(levelForCategory(ee.Category))
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = levelForCategory(ee.Category)
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.Component, ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func levelForCategory(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryDatabase, CategorySystem, CategoryState:
		return sentry.LevelError
	case CategoryNotification, CategoryNetwork, CategoryHTTP, CategoryCache, CategoryMQTTPublish, CategoryTimeout:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}

var (
	urlQueryPattern = regexp.MustCompile(`(https?://[^\s?]+)\?[^\s]+`)
	userinfoPattern = regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^\s/@]+@`)
	secretKVPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key)=[^\s&]+`)
)

// ScrubMessage removes credentials from URLs and key=value pairs so webhook
// secrets and SMTP passwords never leave the process.
func ScrubMessage(msg string) string {
	msg = urlQueryPattern.ReplaceAllString(msg, "$1?[REDACTED]")
	msg = userinfoPattern.ReplaceAllString(msg, "$1[REDACTED]@")
	return secretKVPattern.ReplaceAllString(msg, "$1=[REDACTED]")
}
