package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

const (
	bytesPerMB = 1024 * 1024
	bytesPerGB = 1024 * 1024 * 1024
)

// MetricsCollector gathers health snapshots. Every probe is isolated: a
// failing probe degrades only its own field and Collect never fails.
type MetricsCollector struct {
	resources ResourceProbe
	conn      ConnectivityProbe
	jobs      JobStore
	evaluator *HealthEvaluator
	predictor *PerformancePredictor
	snapshots SnapshotStore
	metrics   *metrics.MonitorMetrics
	now       func() time.Time
	log       logger.Logger

	mu         sync.RWMutex
	lastStatus HealthStatus
}

// CollectorOption configures a MetricsCollector
type CollectorOption func(*MetricsCollector)

// WithSnapshotStore persists every collected snapshot
func WithSnapshotStore(s SnapshotStore) CollectorOption {
	return func(c *MetricsCollector) { c.snapshots = s }
}

// WithCollectorMetrics enables Prometheus instrumentation
func WithCollectorMetrics(m *metrics.MonitorMetrics) CollectorOption {
	return func(c *MetricsCollector) { c.metrics = m }
}

// WithCollectorClock replaces time.Now for the collector
func WithCollectorClock(now func() time.Time) CollectorOption {
	return func(c *MetricsCollector) { c.now = now }
}

// NewMetricsCollector creates a collector. The evaluator decides the status
// of each snapshot; the predictor feeds CollectPerformanceMetrics.
func NewMetricsCollector(resources ResourceProbe, conn ConnectivityProbe, jobs JobStore, evaluator *HealthEvaluator, predictor *PerformancePredictor, opts ...CollectorOption) *MetricsCollector {
	c := &MetricsCollector{
		resources: resources,
		conn:      conn,
		jobs:      jobs,
		evaluator: evaluator,
		predictor: predictor,
		now:       time.Now,
		log:       GetLogger().Module("collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastStatus returns the status of the most recent snapshot, or "" before
// the first collection
func (c *MetricsCollector) LastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastStatus
}

// Collect returns a fresh health snapshot. If collection fails as a whole
// a minimal critical snapshot is returned instead.
func (c *MetricsCollector) Collect(ctx context.Context) (health SystemHealth) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("health collection failed, reporting critical", logger.Any("panic", r))
			health = criticalSnapshot(c.now())
			c.recordStatus(health.Status)
		}
	}()

	health = SystemHealth{Timestamp: c.now()}

	health.CPUUsage = c.readPercent(ctx, "cpu", c.resources.CPUPercent, &health.DegradedProbes)
	health.MemoryUsage = c.readPercent(ctx, "memory", c.resources.MemoryPercent, &health.DegradedProbes)
	health.DiskUsage = c.readPercent(ctx, "disk", c.resources.DiskPercent, &health.DegradedProbes)

	health.DatabaseStatus = c.conn.PingDatabase(ctx)
	health.CacheStatus = c.conn.PingCache(ctx)

	stats, err := c.taskStats(ctx, health.Timestamp)
	if err != nil {
		c.log.Error("job store unavailable, task counts zeroed", logger.Error(err))
		health.DegradedProbes = append(health.DegradedProbes, "jobs")
		stats = TaskStats{}
	}
	health.ActiveTasks = stats.Running
	health.QueuedTasks = stats.Queued
	health.FailedTasksLastHour = stats.FailedLastHour

	if avg, ok, err := c.jobs.AverageProcessingTime(ctx, 24); err != nil {
		c.log.Warn("average processing time unavailable", logger.Error(err))
		health.DegradedProbes = append(health.DegradedProbes, "processing_time")
	} else if ok {
		health.AvgProcessingTime = avg
	}

	health.Status = c.evaluator.Evaluate(health.CPUUsage, health.MemoryUsage, health.DiskUsage,
		health.DatabaseStatus, health.CacheStatus, stats)

	c.recordStatus(health.Status)
	c.recordMetrics(&health)
	c.persist(ctx, &health)

	return health
}

func (c *MetricsCollector) readPercent(ctx context.Context, name string, probe func(context.Context) ProbeResult[float64], degraded *[]string) float64 {
	res := probe(ctx)
	if res.Degraded {
		c.log.Error("resource probe failed", logger.String("probe", name), logger.Error(res.Err))
		*degraded = append(*degraded, name)
		if c.metrics != nil {
			c.metrics.RecordProbeFailure(name)
		}
		return 0
	}
	return res.Value
}

func (c *MetricsCollector) taskStats(ctx context.Context, now time.Time) (TaskStats, error) {
	var stats TaskStats
	var err error
	if stats.Running, err = c.jobs.CountByStatus(ctx, TaskRunning); err != nil {
		return TaskStats{}, fmt.Errorf("count running: %w", err)
	}
	if stats.Queued, err = c.jobs.CountByStatus(ctx, TaskQueued); err != nil {
		return TaskStats{}, fmt.Errorf("count queued: %w", err)
	}
	if stats.FailedLastHour, err = c.jobs.CountFailedSince(ctx, now.Add(-time.Hour)); err != nil {
		return TaskStats{}, fmt.Errorf("count failed: %w", err)
	}
	return stats, nil
}

func (c *MetricsCollector) recordStatus(status HealthStatus) {
	c.mu.Lock()
	c.lastStatus = status
	c.mu.Unlock()
}

func (c *MetricsCollector) recordMetrics(h *SystemHealth) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordResourceUsage("cpu", h.CPUUsage)
	c.metrics.RecordResourceUsage("memory", h.MemoryUsage)
	c.metrics.RecordResourceUsage("disk", h.DiskUsage)
	c.metrics.SetHealthStatus(h.Status.Level())
	c.metrics.SetComponentStatus("database", h.DatabaseStatus.Level())
	c.metrics.SetComponentStatus("cache", h.CacheStatus.Level())
	c.metrics.SetTaskCount("running", h.ActiveTasks)
	c.metrics.SetTaskCount("queued", h.QueuedTasks)
	c.metrics.SetTaskCount("failed_last_hour", h.FailedTasksLastHour)
}

func (c *MetricsCollector) persist(ctx context.Context, h *SystemHealth) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.SaveSnapshot(ctx, h); err != nil {
		c.log.Warn("failed to persist health snapshot", logger.Error(err))
	}
}

// History returns persisted snapshots taken since the given time
func (c *MetricsCollector) History(ctx context.Context, since time.Time) ([]SystemHealth, error) {
	if c.snapshots == nil {
		return nil, nil
	}
	return c.snapshots.Snapshots(ctx, since)
}

// CollectResourceUsage returns a detailed resource breakdown with absolute
// units. Failed probes are zeroed and listed in DegradedProbes.
func (c *MetricsCollector) CollectResourceUsage(ctx context.Context) (usage ResourceUsage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("resource usage collection failed", logger.Any("panic", r))
			usage = ResourceUsage{Degraded: true, DegradedProbes: []string{"collector"}, Timestamp: c.now()}
		}
	}()

	usage.Timestamp = c.now()
	usage.CPUPercent = c.readPercent(ctx, "cpu", c.resources.CPUPercent, &usage.DegradedProbes)
	usage.MemoryPercent = c.readPercent(ctx, "memory", c.resources.MemoryPercent, &usage.DegradedProbes)
	usage.DiskPercent = c.readPercent(ctx, "disk", c.resources.DiskPercent, &usage.DegradedProbes)

	if detail, ok := c.resources.(ResourceDetailProbe); ok {
		c.collectDetails(ctx, detail, &usage)
	}

	if stats, ok := c.conn.(DBStatsProvider); ok {
		if n, err := stats.OpenConnections(ctx); err != nil {
			c.log.Warn("database connection count unavailable", logger.Error(err))
			usage.DegradedProbes = append(usage.DegradedProbes, "database_connections")
		} else {
			usage.DatabaseConnections = n
		}
	}

	if info, ok := c.conn.(CacheInfoProvider); ok {
		if b, err := info.CacheMemoryBytes(ctx); err != nil {
			c.log.Debug("cache memory usage unavailable", logger.Error(err))
			usage.DegradedProbes = append(usage.DegradedProbes, "cache_memory")
		} else {
			usage.CacheMemoryMB = float64(b) / bytesPerMB
		}
	}

	usage.Degraded = len(usage.DegradedProbes) > 0
	return usage
}

func (c *MetricsCollector) collectDetails(ctx context.Context, p ResourceDetailProbe, usage *ResourceUsage) {
	if m := p.MemoryDetail(ctx); m.Degraded {
		c.log.Warn("memory detail probe failed", logger.Error(m.Err))
		usage.DegradedProbes = append(usage.DegradedProbes, "memory_detail")
	} else {
		usage.MemoryUsedMB = float64(m.Value.UsedBytes) / bytesPerMB
		usage.MemoryTotalMB = float64(m.Value.TotalBytes) / bytesPerMB
	}

	if d := p.DiskDetail(ctx); d.Degraded {
		c.log.Warn("disk detail probe failed", logger.Error(d.Err))
		usage.DegradedProbes = append(usage.DegradedProbes, "disk_detail")
	} else {
		usage.DiskUsedGB = float64(d.Value.UsedBytes) / bytesPerGB
		usage.DiskTotalGB = float64(d.Value.TotalBytes) / bytesPerGB
	}

	if n := p.NetworkIO(ctx); n.Degraded {
		c.log.Warn("network counters unavailable", logger.Error(n.Err))
		usage.DegradedProbes = append(usage.DegradedProbes, "network")
	} else {
		usage.NetworkBytesSent = n.Value.BytesSent
		usage.NetworkBytesRecv = n.Value.BytesRecv
	}

	info := p.CPUInfo()
	usage.CPUModel = info.Model
	usage.LogicalCores = info.LogicalCores
}

// CollectPerformanceMetrics summarizes job throughput over the last hour.
// Job store failures zero the affected figures.
func (c *MetricsCollector) CollectPerformanceMetrics(ctx context.Context) PerformanceMetrics {
	return c.collectPerformance(ctx, nil)
}

// collectPerformance fills ResourceUsage from health when given, so a cycle
// reports the readings it evaluated instead of sampling the probes again
func (c *MetricsCollector) collectPerformance(ctx context.Context, health *SystemHealth) PerformanceMetrics {
	now := c.now()
	hourAgo := now.Add(-time.Hour)
	pm := PerformanceMetrics{Timestamp: now, ResourceUsage: make(map[string]float64)}

	created, err := c.jobs.CountCreatedInWindow(ctx, hourAgo, now)
	if err != nil {
		c.log.Warn("created job count unavailable", logger.Error(err))
	}
	completed, err := c.jobs.CountCompletedInWindow(ctx, hourAgo, now)
	if err != nil {
		c.log.Warn("completed job count unavailable", logger.Error(err))
	}
	failed, err := c.jobs.CountFailedSince(ctx, hourAgo)
	if err != nil {
		c.log.Warn("failed job count unavailable", logger.Error(err))
	}
	pm.Throughput = Throughput{Created: created, Completed: completed, Failed: failed}

	// one hour window, so the hourly rate is the completed count
	pm.JobCompletionRate = float64(completed)
	if finished := completed + failed; finished > 0 {
		pm.SuccessRate = float64(completed) / float64(finished) * 100
		pm.ErrorRate = float64(failed) / float64(finished) * 100
	}

	if avg, ok, err := c.jobs.AverageProcessingTime(ctx, 24); err != nil {
		c.log.Warn("average processing time unavailable", logger.Error(err))
	} else if ok {
		pm.AvgProcessingTime = avg
	}

	if c.predictor != nil {
		pm.QueueWaitTime = c.predictor.PredictQueueWait(ctx)
		if c.metrics != nil {
			c.metrics.SetQueueWait(pm.QueueWaitTime)
		}
	}

	if health != nil {
		pm.ResourceUsage["cpu"] = health.CPUUsage
		pm.ResourceUsage["memory"] = health.MemoryUsage
		pm.ResourceUsage["disk"] = health.DiskUsage
		return pm
	}
	pm.ResourceUsage["cpu"] = c.readPercent(ctx, "cpu", c.resources.CPUPercent, new([]string))
	pm.ResourceUsage["memory"] = c.readPercent(ctx, "memory", c.resources.MemoryPercent, new([]string))
	pm.ResourceUsage["disk"] = c.readPercent(ctx, "disk", c.resources.DiskPercent, new([]string))

	return pm
}

// ProcessingTimeTrend returns the mean job duration over the last hour and
// the last day, zero where there is no data
func (c *MetricsCollector) ProcessingTimeTrend(ctx context.Context) (lastHour, lastDay float64) {
	if avg, ok, err := c.jobs.AverageProcessingTime(ctx, 1); err == nil && ok {
		lastHour = avg
	}
	if avg, ok, err := c.jobs.AverageProcessingTime(ctx, 24); err == nil && ok {
		lastDay = avg
	}
	return lastHour, lastDay
}
