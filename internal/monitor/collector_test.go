package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

type memorySnapshots struct {
	mu    sync.Mutex
	saved []SystemHealth
}

func (s *memorySnapshots) SaveSnapshot(_ context.Context, h *SystemHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *h)
	return nil
}

func (s *memorySnapshots) Snapshots(_ context.Context, since time.Time) ([]SystemHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SystemHealth
	for _, h := range s.saved {
		if !h.Timestamp.Before(since) {
			out = append(out, h)
		}
	}
	return out, nil
}

type collectorFixture struct {
	jobs      *fakeJobs
	resources *fakeResources
	conn      *fakeConn
	snapshots *memorySnapshots
	metrics   *metrics.MonitorMetrics
	collector *MetricsCollector
	now       time.Time
}

func newCollectorFixture(t *testing.T) *collectorFixture {
	t.Helper()

	f := &collectorFixture{
		jobs:      newFakeJobs(),
		resources: &fakeResources{cpu: 12, memory: 40, disk: 55},
		conn:      &fakeConn{db: ComponentHealthy, cache: ComponentUnavailable},
		snapshots: &memorySnapshots{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	mm, err := metrics.NewMonitorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	f.metrics = mm

	evaluator, err := NewHealthEvaluator(DefaultHealthThresholds(), f.jobs, WithClock(clock))
	require.NoError(t, err)

	f.collector = NewMetricsCollector(f.resources, f.conn, f.jobs, evaluator,
		NewPerformancePredictor(f.jobs, 3),
		WithSnapshotStore(f.snapshots),
		WithCollectorMetrics(mm),
		WithCollectorClock(clock))
	return f
}

func TestCollectHealthy(t *testing.T) {
	t.Parallel()

	f := newCollectorFixture(t)
	f.jobs.counts[TaskRunning] = 2
	f.jobs.counts[TaskQueued] = 5
	f.jobs.failedHr = 1
	f.jobs.avg[24] = 42.5

	assert.Empty(t, f.collector.LastStatus(), "no status before the first collection")

	h := f.collector.Collect(t.Context())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.InDelta(t, 12.0, h.CPUUsage, 1e-9)
	assert.Equal(t, ComponentHealthy, h.DatabaseStatus)
	assert.Equal(t, ComponentUnavailable, h.CacheStatus)
	assert.Equal(t, 2, h.ActiveTasks)
	assert.Equal(t, 5, h.QueuedTasks)
	assert.Equal(t, 1, h.FailedTasksLastHour)
	assert.InDelta(t, 42.5, h.AvgProcessingTime, 1e-9)
	assert.Empty(t, h.DegradedProbes)
	assert.Equal(t, f.now, h.Timestamp)
	assert.Equal(t, StatusHealthy, f.collector.LastStatus())

	history, err := f.collector.History(t.Context(), f.now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, h, history[0])

	assert.InDelta(t, 0.0, testutil.ToFloat64(f.metrics.HealthStatus), 1e-9)
	assert.InDelta(t, 5.0, testutil.ToFloat64(f.metrics.TaskCounts.WithLabelValues("queued")), 1e-9)
	assert.InDelta(t, -1.0, testutil.ToFloat64(f.metrics.ComponentStatus.WithLabelValues("cache")), 1e-9)
}

func TestCollectDegradesFailedProbes(t *testing.T) {
	t.Parallel()

	f := newCollectorFixture(t)
	f.resources.cpuErr = errors.New("cpu counters unreadable")
	f.resources.memory = 95
	f.jobs.setErr(errStoreDown)

	h := f.collector.Collect(t.Context())
	assert.Equal(t, StatusCritical, h.Status, "memory is still measured")
	assert.Zero(t, h.CPUUsage)
	assert.Zero(t, h.ActiveTasks)
	assert.Contains(t, h.DegradedProbes, "cpu")
	assert.Contains(t, h.DegradedProbes, "jobs")
	assert.Contains(t, h.DegradedProbes, "processing_time")
	assert.InDelta(t, 1.0, testutil.ToFloat64(f.metrics.ProbeFailuresTotal.WithLabelValues("cpu")), 1e-9)
}

func TestCollectPanicReturnsCriticalSnapshot(t *testing.T) {
	t.Parallel()

	f := newCollectorFixture(t)
	f.resources.panicky = true

	var h SystemHealth
	require.NotPanics(t, func() { h = f.collector.Collect(t.Context()) })
	assert.Equal(t, StatusCritical, h.Status)
	assert.Equal(t, ComponentError, h.DatabaseStatus)
	assert.Equal(t, ComponentError, h.CacheStatus)
	assert.Equal(t, []string{"collector"}, h.DegradedProbes)
	assert.Equal(t, f.now, h.Timestamp)
	assert.Equal(t, StatusCritical, f.collector.LastStatus())
}

func TestCollectPerformanceMetrics(t *testing.T) {
	t.Parallel()

	f := newCollectorFixture(t)
	f.jobs.created = 20
	f.jobs.completed = 15
	f.jobs.failedHr = 5
	f.jobs.avg[24] = 60
	f.jobs.counts[TaskQueued] = 10
	f.jobs.counts[TaskRunning] = 3

	pm := f.collector.CollectPerformanceMetrics(t.Context())
	assert.Equal(t, Throughput{Created: 20, Completed: 15, Failed: 5}, pm.Throughput)
	assert.InDelta(t, 15.0, pm.JobCompletionRate, 1e-9)
	assert.InDelta(t, 75.0, pm.SuccessRate, 1e-9)
	assert.InDelta(t, 25.0, pm.ErrorRate, 1e-9)
	assert.InDelta(t, 60.0, pm.AvgProcessingTime, 1e-9)
	assert.Equal(t, 72, pm.QueueWaitTime)
	assert.InDelta(t, 12.0, pm.ResourceUsage["cpu"], 1e-9)
	assert.InDelta(t, 72.0, testutil.ToFloat64(f.metrics.QueueWaitSeconds), 1e-9)
}

func TestCollectPerformanceMetricsNoJobs(t *testing.T) {
	t.Parallel()

	f := newCollectorFixture(t)
	pm := f.collector.CollectPerformanceMetrics(t.Context())
	assert.Zero(t, pm.SuccessRate)
	assert.Zero(t, pm.ErrorRate)
	assert.Zero(t, pm.AvgProcessingTime)
}

type detailResources struct {
	*fakeResources
}

func (detailResources) MemoryDetail(context.Context) ProbeResult[MemoryDetail] {
	return Ok(MemoryDetail{UsedBytes: 512 * bytesPerMB, TotalBytes: 2048 * bytesPerMB})
}

func (detailResources) DiskDetail(context.Context) ProbeResult[DiskDetail] {
	return Failed[DiskDetail](errors.New("statfs failed"))
}

func (detailResources) NetworkIO(context.Context) ProbeResult[NetworkIO] {
	return Ok(NetworkIO{BytesSent: 100, BytesRecv: 200})
}

func (detailResources) CPUInfo() CPUInfo {
	return CPUInfo{Model: "Test CPU", LogicalCores: 8}
}

type statsConn struct {
	*fakeConn
}

func (statsConn) OpenConnections(context.Context) (int, error) { return 4, nil }

func (statsConn) CacheMemoryBytes(context.Context) (uint64, error) { return 3 * bytesPerMB, nil }

func TestCollectResourceUsage(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobs()
	evaluator, err := NewHealthEvaluator(DefaultHealthThresholds(), jobs)
	require.NoError(t, err)
	c := NewMetricsCollector(
		detailResources{&fakeResources{cpu: 30, memory: 25, disk: 60}},
		statsConn{&fakeConn{db: ComponentHealthy, cache: ComponentHealthy}},
		jobs, evaluator, nil)

	usage := c.CollectResourceUsage(t.Context())
	assert.InDelta(t, 512.0, usage.MemoryUsedMB, 1e-9)
	assert.InDelta(t, 2048.0, usage.MemoryTotalMB, 1e-9)
	assert.Zero(t, usage.DiskTotalGB)
	assert.Equal(t, uint64(200), usage.NetworkBytesRecv)
	assert.Equal(t, 4, usage.DatabaseConnections)
	assert.InDelta(t, 3.0, usage.CacheMemoryMB, 1e-9)
	assert.Equal(t, "Test CPU", usage.CPUModel)
	assert.Equal(t, 8, usage.LogicalCores)
	assert.True(t, usage.Degraded)
	assert.Equal(t, []string{"disk_detail"}, usage.DegradedProbes)
}

func TestSystemHealthJSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := SystemHealth{
		Status:              StatusWarning,
		CPUUsage:            71.5,
		MemoryUsage:         40,
		DiskUsage:           12.25,
		DatabaseStatus:      ComponentHealthy,
		CacheStatus:         ComponentError,
		ActiveTasks:         3,
		QueuedTasks:         9,
		FailedTasksLastHour: 2,
		AvgProcessingTime:   61.5,
		DegradedProbes:      []string{"network"},
		Timestamp:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failed_tasks_last_hour":2`)

	var out SystemHealth
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
