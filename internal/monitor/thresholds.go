package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/logger"
)

// alertKind identifies a monitoring condition for the per-kind cooldown
type alertKind string

const (
	kindResourceCritical alertKind = "resource_critical"
	kindResourceWarning  alertKind = "resource_warning"
	kindDatabaseError    alertKind = "database_error"
	kindCacheError       alertKind = "cache_error"
	kindHighErrorRate    alertKind = "high_error_rate"
	kindStuckJobs        alertKind = "stuck_jobs_detected"
	kindSystemDegraded   alertKind = "system_degraded"
	kindSystemRecovered  alertKind = "system_recovered"
)

const maxStuckIDsInContext = 10

// thresholdAlert is one condition found by checkThresholds
type thresholdAlert struct {
	kind      alertKind
	key       string // cooldown key, kind plus resource for resource alerts
	alertType alerting.AlertType
	severity  alerting.Severity
	message   string
	context   map[string]any
}

// cycleInput is what one cycle measured
type cycleInput struct {
	health    *SystemHealth
	stuckJobs []string
	trends    *ErrorTrends
}

// detectConditions lists the threshold breaches for this cycle. For each
// resource the critical check short-circuits the warning check.
func (m *SystemMonitor) detectConditions(in cycleInput, previous HealthStatus) []thresholdAlert {
	t := m.evaluator.Thresholds()
	h := in.health
	var found []thresholdAlert

	resources := []struct {
		name  string
		value float64
		warn  float64
		crit  float64
	}{
		{"cpu", h.CPUUsage, t.CPU.Warning, t.CPU.Critical},
		{"memory", h.MemoryUsage, t.Memory.Warning, t.Memory.Critical},
		{"disk", h.DiskUsage, t.Disk.Warning, t.Disk.Critical},
	}
	for _, r := range resources {
		ctx := map[string]any{"resource": r.name, "usage": r.value}
		switch {
		case r.value >= r.crit:
			ctx["threshold"] = r.crit
			found = append(found, thresholdAlert{
				kind:      kindResourceCritical,
				key:       string(kindResourceCritical) + ":" + r.name,
				alertType: alerting.TypeResourceLow,
				severity:  alerting.SeverityCritical,
				message:   fmt.Sprintf("%s usage is critical", resourceLabel(r.name)),
				context:   ctx,
			})
		case r.value >= r.warn:
			ctx["threshold"] = r.warn
			found = append(found, thresholdAlert{
				kind:      kindResourceWarning,
				key:       string(kindResourceWarning) + ":" + r.name,
				alertType: alerting.TypeResourceLow,
				severity:  alerting.SeverityHigh,
				message:   fmt.Sprintf("%s usage is high", resourceLabel(r.name)),
				context:   ctx,
			})
		}
	}

	if h.DatabaseStatus == ComponentError {
		found = append(found, thresholdAlert{
			kind:      kindDatabaseError,
			alertType: alerting.TypeSystemError,
			severity:  alerting.SeverityCritical,
			message:   "Database connectivity lost",
			context:   map[string]any{"component": "database"},
		})
	}
	if h.CacheStatus == ComponentError {
		found = append(found, thresholdAlert{
			kind:      kindCacheError,
			alertType: alerting.TypeSystemError,
			severity:  alerting.SeverityHigh,
			message:   "Cache connectivity lost",
			context:   map[string]any{"component": "cache"},
		})
	}

	if in.trends != nil {
		rate := in.trends.ErrorRate
		ctx := map[string]any{"error_rate": rate, "window_hours": in.trends.WindowHours, "total_errors": in.trends.TotalErrors}
		switch {
		case rate >= t.ErrorRate.Critical:
			ctx["threshold"] = t.ErrorRate.Critical
			found = append(found, thresholdAlert{
				kind:      kindHighErrorRate,
				alertType: alerting.TypeJobFailure,
				severity:  alerting.SeverityCritical,
				message:   "Job error rate is critical",
				context:   ctx,
			})
		case rate >= t.ErrorRate.Warning:
			ctx["threshold"] = t.ErrorRate.Warning
			found = append(found, thresholdAlert{
				kind:      kindHighErrorRate,
				alertType: alerting.TypeJobFailure,
				severity:  alerting.SeverityHigh,
				message:   "Job error rate is high",
				context:   ctx,
			})
		}
	}

	if len(in.stuckJobs) >= t.StuckJobs {
		ids := in.stuckJobs
		if len(ids) > maxStuckIDsInContext {
			ids = ids[:maxStuckIDsInContext]
		}
		found = append(found, thresholdAlert{
			kind:      kindStuckJobs,
			alertType: alerting.TypePerformanceDegradation,
			severity:  alerting.SeverityHigh,
			message:   "Stuck jobs detected",
			context: map[string]any{
				"count":           len(in.stuckJobs),
				"job_ids":         ids,
				"timeout_seconds": int(m.stuckTimeout.Seconds()),
			},
		})
	}

	current := h.Status
	if current != previous && (current == StatusWarning || current == StatusCritical) {
		severity := alerting.SeverityHigh
		if current == StatusCritical {
			severity = alerting.SeverityCritical
		}
		found = append(found, thresholdAlert{
			kind:      kindSystemDegraded,
			alertType: alerting.TypeSystemError,
			severity:  severity,
			message:   "System health degraded",
			context:   map[string]any{"previous_status": string(previous), "current_status": string(current)},
		})
	}

	return found
}

// raiseAlerts sends the detected conditions through the per-kind cooldown,
// then handles recovery. It returns the ids of alerts sent.
func (m *SystemMonitor) raiseAlerts(ctx context.Context, found []thresholdAlert, previous, current HealthStatus) []string {
	var ids []string
	send := func(a *thresholdAlert) {
		key := a.key
		if key == "" {
			key = string(a.kind)
		}
		if !m.shouldSendAlert(key) {
			m.log.Debug("alert suppressed by cooldown", logger.String("kind", key))
			if m.metrics != nil {
				m.metrics.RecordAlertSuppressed(string(a.kind))
			}
			return
		}
		a.context["monitor_alert"] = string(a.kind)
		if id := m.engine.SendAlert(ctx, a.alertType, a.message, a.severity, a.context); id != "" {
			ids = append(ids, id)
			if m.metrics != nil {
				m.metrics.RecordAlertEmitted(string(a.kind))
			}
		}
	}

	m.stateMu.Lock()
	for i := range found {
		m.tracked[found[i].kind] = struct{}{}
	}
	recovered := current == StatusHealthy &&
		(previous == StatusWarning || previous == StatusCritical) &&
		len(m.tracked) > 0
	var clearedKinds []string
	if recovered {
		for k := range m.tracked {
			clearedKinds = append(clearedKinds, string(k))
		}
		clear(m.tracked)
	}
	m.stateMu.Unlock()

	for i := range found {
		send(&found[i])
	}

	if recovered {
		send(&thresholdAlert{
			kind:      kindSystemRecovered,
			alertType: alerting.TypeSystemError,
			severity:  alerting.SeverityMedium,
			message:   "System health recovered",
			context: map[string]any{
				"previous_status": string(previous),
				"cleared_alerts":  clearedKinds,
			},
		})
	}

	return ids
}

// shouldSendAlert reports whether key is outside its cooldown and, if so,
// starts a new cooldown. Entries hold the send time on the monitor clock;
// callers hold cycleMu.
func (m *SystemMonitor) shouldSendAlert(key string) bool {
	now := m.now()
	if v, found := m.cooldowns.Get(key); found {
		if sent, ok := v.(time.Time); ok && now.Sub(sent) < m.cooldown {
			return false
		}
	}
	m.cooldowns.Set(key, now, cache.NoExpiration)
	return true
}

// pruneCooldowns drops entries whose cooldown has passed on the monitor clock
func (m *SystemMonitor) pruneCooldowns() {
	now := m.now()
	for key, item := range m.cooldowns.Items() {
		if sent, ok := item.Object.(time.Time); !ok || now.Sub(sent) >= m.cooldown {
			m.cooldowns.Delete(key)
		}
	}
}

func resourceLabel(name string) string {
	switch name {
	case "cpu":
		return "CPU"
	default:
		return cases.Title(language.English).String(name)
	}
}
