// Package monitor collects system health, evaluates it against thresholds
// and raises alerts from a periodic monitoring loop.
package monitor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

const (
	defaultInterval        = time.Minute
	defaultCooldown        = 5 * time.Minute
	defaultStuckJobTimeout = time.Hour
	defaultErrorWindow     = 24
	defaultStopTimeout     = 10 * time.Second

	triggerScheduled = "scheduled"
	triggerForced    = "forced"
)

// ErrStopTimeout is returned by Stop when the loop does not exit in time
var ErrStopTimeout = errors.NewStd("monitor: timed out waiting for monitoring loop to stop")

// CheckResult is the outcome of one monitoring cycle
type CheckResult struct {
	Trigger     string             `json:"trigger"`
	Health      SystemHealth       `json:"health"`
	Performance PerformanceMetrics `json:"performance"`
	ErrorTrends ErrorTrends        `json:"error_trends"`
	StuckJobs   []string           `json:"stuck_jobs"`
	AlertIDs    []string           `json:"alert_ids"`
	Escalated   []string           `json:"escalated"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
}

// Status describes the monitoring loop
type Status struct {
	Running       bool          `json:"running"`
	Interval      time.Duration `json:"interval"`
	Cycles        int           `json:"cycles"`
	LastCheck     time.Time     `json:"last_check"`
	LastStatus    HealthStatus  `json:"last_status"`
	TrackedAlerts []string      `json:"tracked_alerts"`
}

// SystemMonitor runs the collect, evaluate, alert cycle on an interval
type SystemMonitor struct {
	collector    *MetricsCollector
	evaluator    *HealthEvaluator
	engine       AlertSender
	latency      LatencyProbe
	metrics      *metrics.MonitorMetrics
	interval     time.Duration
	cooldown     time.Duration
	stuckTimeout time.Duration
	errorWindow  int
	stopTimeout  time.Duration
	cooldowns    *cache.Cache
	now          func() time.Time
	log          logger.Logger

	// cycleMu serializes scheduled and forced cycles
	cycleMu sync.Mutex

	stateMu    sync.Mutex
	previous   HealthStatus
	tracked    map[alertKind]struct{}
	lastHealth *SystemHealth
	cycles     int

	lifeMu  sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// MonitorOption configures a SystemMonitor
type MonitorOption func(*SystemMonitor)

// WithLatencyProbe measures AI service latency each cycle
func WithLatencyProbe(p LatencyProbe) MonitorOption {
	return func(m *SystemMonitor) { m.latency = p }
}

// WithMonitorMetrics enables cycle instrumentation
func WithMonitorMetrics(mm *metrics.MonitorMetrics) MonitorOption {
	return func(m *SystemMonitor) { m.metrics = mm }
}

// WithStopTimeout overrides how long Stop waits for the loop
func WithStopTimeout(d time.Duration) MonitorOption {
	return func(m *SystemMonitor) { m.stopTimeout = d }
}

// WithAlertCooldown overrides the configured per-kind alert cooldown
func WithAlertCooldown(d time.Duration) MonitorOption {
	return func(m *SystemMonitor) { m.cooldown = d }
}

// WithMonitorClock replaces time.Now for cycle timestamps and alert cooldowns
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *SystemMonitor) { m.now = now }
}

// NewSystemMonitor creates a monitor. Zero values in cfg fall back to defaults.
func NewSystemMonitor(cfg *conf.MonitoringSettings, collector *MetricsCollector, evaluator *HealthEvaluator, engine AlertSender, opts ...MonitorOption) (*SystemMonitor, error) {
	if collector == nil || evaluator == nil || engine == nil {
		return nil, errors.Newf("system monitor requires a collector, evaluator and alert engine").
			Component("monitor").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg == nil {
		cfg = &conf.MonitoringSettings{}
	}

	m := &SystemMonitor{
		collector:    collector,
		evaluator:    evaluator,
		engine:       engine,
		interval:     secondsOr(cfg.Interval, defaultInterval),
		cooldown:     secondsOr(cfg.AlertCooldown, defaultCooldown),
		stuckTimeout: secondsOr(cfg.StuckJobTimeout, defaultStuckJobTimeout),
		errorWindow:  cfg.ErrorWindowHours,
		stopTimeout:  defaultStopTimeout,
		now:          time.Now,
		previous:     StatusHealthy,
		tracked:      make(map[alertKind]struct{}),
		log:          GetLogger(),
	}
	if m.errorWindow <= 0 {
		m.errorWindow = defaultErrorWindow
	}
	for _, opt := range opts {
		opt(m)
	}
	// no janitor goroutine, stale entries are pruned each cycle
	m.cooldowns = cache.New(cache.NoExpiration, 0)

	m.log.Info("system monitor created",
		logger.Duration("interval", m.interval),
		logger.Duration("alert_cooldown", m.cooldown),
		logger.Duration("stuck_job_timeout", m.stuckTimeout),
		logger.Int("error_window_hours", m.errorWindow),
		logger.Bool("latency_probe", m.latency != nil))

	return m, nil
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Start launches the monitoring loop. An immediate cycle runs first.
// Calling Start on a running monitor does nothing.
func (m *SystemMonitor) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.running {
		m.log.Debug("monitor already running")
		return
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})
	m.running = true

	go m.monitorLoop(m.ctx, m.done)
	m.log.Info("system monitoring started", logger.Duration("interval", m.interval))
}

// Stop cancels the loop and waits for the current cycle to finish
func (m *SystemMonitor) Stop() error {
	m.lifeMu.Lock()
	if !m.running {
		m.lifeMu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	done := m.done
	m.lifeMu.Unlock()

	m.log.Info("stopping system monitoring")

	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		m.log.Warn("monitoring loop did not stop in time", logger.Duration("timeout", m.stopTimeout))
		return ErrStopTimeout
	}
}

// IsRunning reports whether the loop is active
func (m *SystemMonitor) IsRunning() bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.running
}

func (m *SystemMonitor) monitorLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.runCycle(ctx, triggerScheduled)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runCycle(ctx, triggerScheduled)
		case <-ctx.Done():
			m.log.Info("system monitor loop stopping")
			return
		}
	}
}

// ForceCheck runs one cycle immediately and returns its result
func (m *SystemMonitor) ForceCheck(ctx context.Context) (CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return CheckResult{}, err
	}
	return m.runCycle(ctx, triggerForced)
}

// runCycle performs one collect, evaluate and alert pass. A panic anywhere
// in the cycle is logged and the loop carries on.
func (m *SystemMonitor) runCycle(ctx context.Context, trigger string) (result CheckResult, err error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.now()
	result = CheckResult{Trigger: trigger, StartedAt: start}
	log := m.log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("monitoring cycle panicked: %v", r).
				Component("monitor").
				Category(errors.CategorySystem).
				Context("trigger", trigger).
				Build()
			log.Error("monitoring cycle failed", logger.Error(err))
			m.recordCycle(trigger, "panic", time.Since(start))
		}
	}()

	health := m.collector.Collect(ctx)
	result.Health = health

	stuck, stuckErr := m.evaluator.DetectStuckJobs(ctx, m.stuckTimeout)
	if stuckErr != nil {
		log.Warn("stuck job detection failed", logger.Error(stuckErr))
	}
	result.StuckJobs = stuck

	result.ErrorTrends = m.evaluator.AnalyzeErrorTrends(ctx, m.errorWindow)
	result.Performance = m.collector.collectPerformance(ctx, &health)

	m.stateMu.Lock()
	previous := m.previous
	m.stateMu.Unlock()

	found := m.detectConditions(cycleInput{health: &health, stuckJobs: stuck, trends: &result.ErrorTrends}, previous)
	result.AlertIDs = m.raiseAlerts(ctx, found, previous, health.Status)
	result.AlertIDs = append(result.AlertIDs, m.engine.EvaluateMetrics(ctx, m.alertSnapshot(ctx, &result))...)
	result.Escalated = m.engine.CheckEscalations(ctx)

	m.pruneCooldowns()

	m.stateMu.Lock()
	m.previous = health.Status
	m.lastHealth = &health
	m.cycles++
	m.stateMu.Unlock()

	result.Duration = time.Since(start)
	m.recordCycle(trigger, string(health.Status), result.Duration)

	log.Info("monitoring cycle completed",
		logger.String("trigger", trigger),
		logger.String("status", string(health.Status)),
		logger.Int("alerts", len(result.AlertIDs)),
		logger.Int("stuck_jobs", len(stuck)),
		logger.Duration("duration", result.Duration))

	return result, nil
}

// alertSnapshot builds the engine rule input from this cycle's measurements
func (m *SystemMonitor) alertSnapshot(ctx context.Context, r *CheckResult) *alerting.MetricsSnapshot {
	lastHour, lastDay := m.collector.ProcessingTimeTrend(ctx)
	snap := &alerting.MetricsSnapshot{
		FinishedJobs:         r.Performance.Throughput.Completed + r.Performance.Throughput.Failed,
		FailedJobs:           r.Performance.Throughput.Failed,
		QueueLength:          r.Health.QueuedTasks,
		AvgProcessingTime1h:  lastHour,
		AvgProcessingTime24h: lastDay,
		FailuresByUser:       r.ErrorTrends.FailuresByUser,
	}
	if m.latency != nil {
		latency, err := m.latency.Measure(ctx)
		snap.AIServiceLatency = latency
		if err != nil {
			snap.AIServiceErr = err
			m.log.Warn("AI service probe failed", logger.Error(err))
		}
	}
	return snap
}

func (m *SystemMonitor) recordCycle(trigger, result string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordCycle(trigger, result, d)
	}
}

// LastHealth returns the snapshot from the most recent cycle
func (m *SystemMonitor) LastHealth() (SystemHealth, bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.lastHealth == nil {
		return SystemHealth{}, false
	}
	return *m.lastHealth, true
}

// Status reports loop state and the alert kinds tracked since the last recovery
func (m *SystemMonitor) Status() Status {
	s := Status{Running: m.IsRunning(), Interval: m.interval}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	s.Cycles = m.cycles
	if m.lastHealth != nil {
		s.LastCheck = m.lastHealth.Timestamp
		s.LastStatus = m.lastHealth.Status
	}
	for k := range m.tracked {
		s.TrackedAlerts = append(s.TrackedAlerts, string(k))
	}
	slices.Sort(s.TrackedAlerts)
	return s
}
