// Package maintenance runs the periodic cleanup jobs: dropping resolved
// alerts past their retention and pruning stored health snapshots.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

// DefaultSchedule runs maintenance daily at 03:00
const DefaultSchedule = "0 0 3 * * *"

// GetLogger returns the maintenance package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("maintenance")
}

// AlertCleaner removes resolved alerts older than the retention
type AlertCleaner interface {
	CleanupOldAlerts(retentionDays int) int
}

// SnapshotPruner deletes stored snapshots older than the retention
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error)
}

// Result reports what one maintenance run removed
type Result struct {
	AlertsRemoved   int
	SnapshotsPruned int64
	Duration        time.Duration
}

// Scheduler runs maintenance on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	log      logger.Logger

	alerts             AlertCleaner
	alertRetentionDays int
	snapshots          SnapshotPruner
	snapshotRetention  time.Duration

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithAlertCleanup enables removal of resolved alerts older than retentionDays
func WithAlertCleanup(alerts AlertCleaner, retentionDays int) Option {
	return func(s *Scheduler) {
		s.alerts = alerts
		s.alertRetentionDays = retentionDays
	}
}

// WithSnapshotPruning enables deletion of snapshots older than retentionDays
func WithSnapshotPruning(snapshots SnapshotPruner, retentionDays int) Option {
	return func(s *Scheduler) {
		s.snapshots = snapshots
		s.snapshotRetention = time.Duration(retentionDays) * 24 * time.Hour
	}
}

// WithLogger overrides the module logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a scheduler for the given cron expression (seconds field
// enabled). An empty schedule uses DefaultSchedule.
func New(schedule string, opts ...Option) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		schedule: schedule,
		log:      GetLogger(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	cronLog := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithParser(conf.CronParser()),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := s.cron.AddFunc(schedule, s.runScheduled); err != nil {
		cancel()
		return nil, errors.New(err).
			Component("maintenance").
			Category(errors.CategoryConfiguration).
			Context("schedule", schedule).
			Build()
	}
	return s, nil
}

// Start begins running jobs on schedule
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.Newf("maintenance scheduler already started").
			Component("maintenance").
			Category(errors.CategoryState).
			Build()
	}
	s.started = true
	s.cron.Start()

	s.log.Info("maintenance scheduler started",
		logger.String("schedule", s.schedule),
		logger.Time("next_run", s.NextRun()))
	return nil
}

// Stop halts the schedule and waits for a running job, at most until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("maintenance").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// NextRun returns when the job runs next, zero when not started
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runScheduled() {
	if _, err := s.RunOnce(s.ctx); err != nil {
		s.log.Warn("scheduled maintenance completed with errors", logger.Error(err))
	}
}

// RunOnce performs all enabled maintenance tasks. A failing task does not
// stop the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	var result Result
	var errs []error

	if s.alerts != nil {
		result.AlertsRemoved = s.alerts.CleanupOldAlerts(s.alertRetentionDays)
	}

	if s.snapshots != nil {
		pruned, err := s.snapshots.PruneSnapshots(ctx, s.snapshotRetention)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune snapshots: %w", err))
		}
		result.SnapshotsPruned = pruned
	}

	result.Duration = time.Since(start)
	s.log.Info("maintenance completed",
		logger.Int("alerts_removed", result.AlertsRemoved),
		logger.Int64("snapshots_pruned", result.SnapshotsPruned),
		logger.Duration("duration", result.Duration))

	return result, errors.Join(errs...)
}

// cronLogger routes cron's internal logging through the module logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(keysAndValues []any) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, logger.Any(key, keysAndValues[i+1]))
	}
	return fields
}
