package monitor

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/logger"
)

const (
	// DefaultErrorWindowHours is the error trend window used when none is given
	DefaultErrorWindowHours = 24
	// MaxRecentErrors bounds ErrorTrends.RecentErrors
	MaxRecentErrors = 10
	// HighFrequencyCount is the per-category count flagged as a pattern
	HighFrequencyCount = 3

	patternHighFrequency = "high_frequency"
)

// HealthEvaluator turns raw measurements into a health verdict and analyzes
// the job store for stuck jobs and error trends
type HealthEvaluator struct {
	mu         sync.RWMutex
	thresholds HealthThresholds
	jobs       JobStore
	now        func() time.Time
	log        logger.Logger
}

// EvaluatorOption configures a HealthEvaluator
type EvaluatorOption func(*HealthEvaluator)

// WithClock replaces time.Now for the evaluator
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *HealthEvaluator) { e.now = now }
}

// NewHealthEvaluator creates an evaluator. Invalid thresholds are rejected.
func NewHealthEvaluator(thresholds HealthThresholds, jobs JobStore, opts ...EvaluatorOption) (*HealthEvaluator, error) {
	if err := conf.ValidateHealthThresholds(&thresholds); err != nil {
		return nil, fmt.Errorf("invalid health thresholds: %w", err)
	}
	e := &HealthEvaluator{
		thresholds: thresholds,
		jobs:       jobs,
		now:        time.Now,
		log:        GetLogger().Module("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds returns the current thresholds
func (e *HealthEvaluator) Thresholds() HealthThresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// SetThresholds validates and applies new thresholds. Nothing is applied
// when any field is invalid.
func (e *HealthEvaluator) SetThresholds(t HealthThresholds) error {
	if err := conf.ValidateHealthThresholds(&t); err != nil {
		return err
	}
	e.mu.Lock()
	e.thresholds = t
	e.mu.Unlock()
	return nil
}

// Evaluate returns the health verdict. A resource at or above its critical
// threshold, or a failed database, is critical. A resource at or above its
// warning threshold, a failed cache or too many recent job failures is a
// warning.
func (e *HealthEvaluator) Evaluate(cpu, memory, disk float64, db, cache ComponentStatus, stats TaskStats) HealthStatus {
	t := e.Thresholds()

	if cpu >= t.CPU.Critical || memory >= t.Memory.Critical || disk >= t.Disk.Critical || db == ComponentError {
		return StatusCritical
	}
	if cpu >= t.CPU.Warning || memory >= t.Memory.Warning || disk >= t.Disk.Warning ||
		cache == ComponentError || stats.FailedLastHour > t.FailedTasksWarning {
		return StatusWarning
	}
	return StatusHealthy
}

// DetectStuckJobs returns ids of jobs that have been running longer than
// timeout. A job started exactly timeout ago is not stuck.
func (e *HealthEvaluator) DetectStuckJobs(ctx context.Context, timeout time.Duration) ([]string, error) {
	cutoff := e.now().Add(-timeout)
	ids, err := e.jobs.FindStuckRunning(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stuck jobs: %w", err)
	}
	return ids, nil
}

// AnalyzeErrorTrends categorizes failed jobs in the last windowHours. A job
// store failure is logged and yields empty trends.
func (e *HealthEvaluator) AnalyzeErrorTrends(ctx context.Context, windowHours int) ErrorTrends {
	if windowHours <= 0 {
		windowHours = DefaultErrorWindowHours
	}
	now := e.now()
	start := now.Add(-time.Duration(windowHours) * time.Hour)

	trends := ErrorTrends{
		ErrorCategories: make(map[ErrorCategory]int),
		RecentErrors:    []RecentError{},
		Patterns:        []ErrorPattern{},
		FailuresByUser:  make(map[string]int),
		WindowHours:     windowHours,
		WindowStart:     start,
		Timestamp:       now,
	}

	failed, err := e.jobs.FindFailedInWindow(ctx, start, now)
	if err != nil {
		e.log.Error("error trend analysis failed", logger.Error(err), logger.Int("window_hours", windowHours))
		return trends
	}

	// newest first
	slices.SortStableFunc(failed, func(a, b FailedTask) int {
		return b.CompletedAt.Compare(a.CompletedAt)
	})

	for _, task := range failed {
		category := CategorizeError(task.ErrorMessage)
		trends.ErrorCategories[category]++
		if task.UserID != "" {
			trends.FailuresByUser[task.UserID]++
		}
		if len(trends.RecentErrors) < MaxRecentErrors {
			trends.RecentErrors = append(trends.RecentErrors, RecentError{
				TaskID:      task.ID,
				Message:     task.ErrorMessage,
				Category:    category,
				UserID:      task.UserID,
				CompletedAt: task.CompletedAt,
			})
		}
	}
	trends.TotalErrors = len(failed)

	for _, category := range slices.Sorted(maps.Keys(trends.ErrorCategories)) {
		count := trends.ErrorCategories[category]
		if count >= HighFrequencyCount {
			trends.Patterns = append(trends.Patterns, ErrorPattern{
				Type:        patternHighFrequency,
				Category:    category,
				Count:       count,
				Description: fmt.Sprintf("High frequency of %s errors", category),
			})
		}
	}

	created, err := e.jobs.CountCreatedInWindow(ctx, start, now)
	if err != nil {
		e.log.Warn("could not count created jobs for error rate", logger.Error(err))
		return trends
	}
	if created > 0 {
		trends.ErrorRate = float64(trends.TotalErrors) / float64(created) * 100
	}

	return trends
}
