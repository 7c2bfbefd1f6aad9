// Package alerting owns the alert lifecycle: creation with deduplication,
// acknowledgement, resolution, escalation of unacknowledged critical alerts,
// bounded history and statistics.
package alerting

import (
	"maps"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
)

// AlertType categorizes an alert
type AlertType string

const (
	TypeJobFailure             AlertType = "job_failure"
	TypeRepeatedFailures       AlertType = "repeated_failures"
	TypeResourceLow            AlertType = "resource_low"
	TypeAIServiceDown          AlertType = "ai_service_down"
	TypeQueueBackup            AlertType = "queue_backup"
	TypeSystemError            AlertType = "system_error"
	TypeUserIssue              AlertType = "user_issue"
	TypePerformanceDegradation AlertType = "performance_degradation"
)

// AllTypes lists every alert type in display order
var AllTypes = []AlertType{
	TypeJobFailure,
	TypeRepeatedFailures,
	TypeResourceLow,
	TypeAIServiceDown,
	TypeQueueBackup,
	TypeSystemError,
	TypeUserIssue,
	TypePerformanceDegradation,
}

// IsValid reports whether t is a known alert type
func (t AlertType) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Title returns the human readable name, e.g. "Resource Low"
func (t AlertType) Title() string {
	caser := cases.Title(language.English)
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "ai" {
			words[i] = "AI"
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// Severity is the urgency of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting; critical sorts first.
// Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// IsValid reports whether s is a known severity
func (s Severity) IsValid() bool {
	return s.Rank() < 4
}

// ParseSeverity converts a case-insensitive string into a Severity
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", errors.Newf("unknown severity %q", s).
			Component("alerting").
			Category(errors.CategoryValidation).
			Build()
	}
	return sev, nil
}

// Status tracks where an alert is in its lifecycle
type Status string

const (
	// StatusActive is a newly raised alert nobody has looked at
	StatusActive Status = "active"
	// StatusAcknowledged means an admin has seen the alert
	StatusAcknowledged Status = "acknowledged"
	// StatusResolved is terminal
	StatusResolved Status = "resolved"
	// StatusEscalated is a critical alert left unacknowledged past the escalation timeout
	StatusEscalated Status = "escalated"
)

// IsOpen reports whether the alert still needs attention
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusAcknowledged || s == StatusEscalated
}

// AlertThresholds are the admin adjustable limits used by EvaluateMetrics
type AlertThresholds = conf.AlertThresholdSettings

// DefaultThresholds returns the built-in alert thresholds
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{
		JobFailureRate:                  0.1,
		RepeatedFailureCount:            3,
		ResourceUsageThreshold:          0.9,
		QueueBackupThreshold:            100,
		AIServiceTimeout:                30,
		PerformanceDegradationThreshold: 2.0,
	}
}

// Alert is a single alert record. Alerts handed out by the Engine are copies;
// mutate them through the Engine methods only.
type Alert struct {
	ID              string         `json:"id"`
	Type            AlertType      `json:"alert_type"`
	Severity        Severity       `json:"severity"`
	Status          Status         `json:"status"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string         `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy      string         `json:"resolved_by,omitempty"`
	EscalatedAt     *time.Time     `json:"escalated_at,omitempty"`
	EscalationLevel int            `json:"escalation_level"`
	Context         map[string]any `json:"context,omitempty"`
	Count           int            `json:"count"`
}

// Clone returns a copy that shares no mutable state with a
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	c.EscalatedAt = cloneTime(a.EscalatedAt)
	if a.Context != nil {
		c.Context = maps.Clone(a.Context)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func buildTitle(t AlertType, s Severity) string {
	return strings.ToUpper(string(s)) + ": " + t.Title()
}

func dedupKey(t AlertType, message string) string {
	return string(t) + "|" + message
}

// Notifier delivers alerts to the configured notification channels
type Notifier interface {
	DispatchAsync(alert *Alert)
}

// Handler is invoked after a new alert of a registered type is created
type Handler func(alert Alert)

// Statistics summarizes the alert state
type Statistics struct {
	TotalActive          int               `json:"total_active"`
	ByStatus             map[Status]int    `json:"by_status"`
	BySeverity           map[Severity]int  `json:"by_severity"`
	ByType               map[AlertType]int `json:"by_type"`
	Last24Hours          int               `json:"last_24_hours"`
	AvgResolutionSeconds float64           `json:"avg_resolution_seconds"`
	HistorySize          int               `json:"history_size"`
	EscalatedOpen        int               `json:"escalated_open"`
}
