package alerting

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
)

// MetricsSnapshot carries the measurements checked against AlertThresholds
type MetricsSnapshot struct {
	FinishedJobs         int                // jobs completed or failed in the last hour
	FailedJobs           int                // jobs failed in the last hour
	QueueLength          int                // currently queued jobs
	ResourceUsage        map[string]float64 // optional, fraction 0..1 by resource name
	AIServiceLatency     time.Duration      // zero when not probed
	AIServiceErr         error              // set when the AI service probe failed
	AvgProcessingTime1h  float64            // seconds, zero when no data
	AvgProcessingTime24h float64            // seconds, zero when no data
	FailuresByUser       map[string]int     // failed jobs per user in the error window
}

// EvaluateMetrics checks a snapshot against the current alert thresholds and
// raises an alert for every breach. Messages carry no measured values so
// repeated breaches fold into one alert; values go into the alert context.
// It returns the ids of the alerts raised or folded.
func (e *Engine) EvaluateMetrics(ctx context.Context, m *MetricsSnapshot) []string {
	t := e.Thresholds()
	var ids []string
	raise := func(alertType AlertType, message string, severity Severity, alertCtx map[string]any) {
		if id := e.SendAlert(ctx, alertType, message, severity, alertCtx); id != "" {
			ids = append(ids, id)
		}
	}

	if m.FinishedJobs > 0 {
		rate := float64(m.FailedJobs) / float64(m.FinishedJobs)
		if rate > t.JobFailureRate {
			raise(TypeJobFailure, "Job failure rate above threshold", SeverityHigh, map[string]any{
				"failure_rate": rate,
				"threshold":    t.JobFailureRate,
				"failed_jobs":  m.FailedJobs,
				"total_jobs":   m.FinishedJobs,
			})
		}
	}

	if m.QueueLength > t.QueueBackupThreshold {
		raise(TypeQueueBackup, "Job queue is backing up", SeverityHigh, map[string]any{
			"queue_length": m.QueueLength,
			"threshold":    t.QueueBackupThreshold,
		})
	}

	for _, resource := range slices.Sorted(maps.Keys(m.ResourceUsage)) {
		usage := m.ResourceUsage[resource]
		if usage > t.ResourceUsageThreshold {
			raise(TypeResourceLow, fmt.Sprintf("%s usage above threshold", resource), SeverityHigh, map[string]any{
				"resource":  resource,
				"usage":     usage,
				"threshold": t.ResourceUsageThreshold,
			})
		}
	}

	timeout := time.Duration(t.AIServiceTimeout) * time.Second
	switch {
	case m.AIServiceErr != nil:
		raise(TypeAIServiceDown, "AI service is unreachable", SeverityCritical, map[string]any{
			"error": m.AIServiceErr.Error(),
		})
	case m.AIServiceLatency > timeout:
		raise(TypeAIServiceDown, "AI service response time exceeds timeout", SeverityCritical, map[string]any{
			"latency_seconds": m.AIServiceLatency.Seconds(),
			"timeout_seconds": t.AIServiceTimeout,
		})
	}

	if m.AvgProcessingTime1h > 0 && m.AvgProcessingTime24h > 0 {
		ratio := m.AvgProcessingTime1h / m.AvgProcessingTime24h
		if ratio > t.PerformanceDegradationThreshold {
			raise(TypePerformanceDegradation, "Job processing time degraded", SeverityMedium, map[string]any{
				"avg_processing_time_1h":  m.AvgProcessingTime1h,
				"avg_processing_time_24h": m.AvgProcessingTime24h,
				"ratio":                   ratio,
				"threshold":               t.PerformanceDegradationThreshold,
			})
		}
	}

	for _, user := range slices.Sorted(maps.Keys(m.FailuresByUser)) {
		count := m.FailuresByUser[user]
		if user == "" || count < t.RepeatedFailureCount {
			continue
		}
		raise(TypeRepeatedFailures, fmt.Sprintf("Repeated job failures for user %s", user), SeverityMedium, map[string]any{
			"user_id":   user,
			"failures":  count,
			"threshold": t.RepeatedFailureCount,
		})
	}

	return ids
}
