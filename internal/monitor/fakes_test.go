package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/healthmon/internal/alerting"
)

var errStoreDown = errors.New("job store unavailable")

// fakeJobs is an in-memory JobStore
type fakeJobs struct {
	mu        sync.Mutex
	counts    map[TaskStatus]int
	failedHr  int
	running   map[string]time.Time // id -> started at
	failed    []FailedTask
	avg       map[int]float64 // window hours -> seconds
	created   int
	completed int
	err       error
	block     chan struct{} // CountByStatus waits on this when set
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		counts:  make(map[TaskStatus]int),
		running: make(map[string]time.Time),
		avg:     make(map[int]float64),
	}
}

func (f *fakeJobs) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeJobs) CountByStatus(_ context.Context, status TaskStatus) (int, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[status], nil
}

func (f *fakeJobs) CountFailedSince(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.failedHr, nil
}

func (f *fakeJobs) FindStuckRunning(_ context.Context, before time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ids []string
	for id, started := range f.running {
		if started.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeJobs) FindFailedInWindow(_ context.Context, start, end time.Time) ([]FailedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []FailedTask
	for _, t := range f.failed {
		if !t.CompletedAt.Before(start) && !t.CompletedAt.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeJobs) AverageProcessingTime(_ context.Context, windowHours int) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	avg, ok := f.avg[windowHours]
	return avg, ok, nil
}

func (f *fakeJobs) CountCreatedInWindow(context.Context, time.Time, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.created, nil
}

func (f *fakeJobs) CountCompletedInWindow(context.Context, time.Time, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.completed, nil
}

// fakeResources is a scripted ResourceProbe
type fakeResources struct {
	mu      sync.Mutex
	cpu     float64
	memory  float64
	disk    float64
	cpuErr  error
	panicky bool

	cpuCalls int
}

func (f *fakeResources) set(cpu, memory, disk float64) {
	f.mu.Lock()
	f.cpu, f.memory, f.disk = cpu, memory, disk
	f.mu.Unlock()
}

func (f *fakeResources) CPUPercent(context.Context) ProbeResult[float64] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuCalls++
	if f.panicky {
		panic("cpu probe exploded")
	}
	if f.cpuErr != nil {
		return Failed[float64](f.cpuErr)
	}
	return Ok(f.cpu)
}

func (f *fakeResources) MemoryPercent(context.Context) ProbeResult[float64] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Ok(f.memory)
}

func (f *fakeResources) DiskPercent(context.Context) ProbeResult[float64] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Ok(f.disk)
}

// fakeConn reports fixed component statuses
type fakeConn struct {
	mu    sync.Mutex
	db    ComponentStatus
	cache ComponentStatus
}

func (f *fakeConn) PingDatabase(context.Context) ComponentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db
}

func (f *fakeConn) PingCache(context.Context) ComponentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cache
}

type sentAlert struct {
	alertType alerting.AlertType
	message   string
	severity  alerting.Severity
	context   map[string]any
}

// fakeSender records what the monitor asks the alert engine to do
type fakeSender struct {
	mu          sync.Mutex
	sent        []sentAlert
	snapshots   []alerting.MetricsSnapshot
	escalations int
	panicOnEval bool
}

func (f *fakeSender) SendAlert(_ context.Context, t alerting.AlertType, msg string, sev alerting.Severity, ctx map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentAlert{alertType: t, message: msg, severity: sev, context: ctx})
	return fmt.Sprintf("alert-%d", len(f.sent))
}

func (f *fakeSender) EvaluateMetrics(_ context.Context, m *alerting.MetricsSnapshot) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnEval {
		panic("rule evaluation exploded")
	}
	f.snapshots = append(f.snapshots, *m)
	return nil
}

func (f *fakeSender) CheckEscalations(context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations++
	return nil
}

// kinds returns the monitor_alert kind of every alert sent, in order
func (f *fakeSender) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, a := range f.sent {
		out = append(out, a.context["monitor_alert"].(string))
	}
	return out
}

func (f *fakeSender) count(kind alertKind) int {
	n := 0
	for _, k := range f.kinds() {
		if k == string(kind) {
			n++
		}
	}
	return n
}

type fakeLatency struct {
	d   time.Duration
	err error
}

func (f fakeLatency) Measure(context.Context) (time.Duration, error) {
	return f.d, f.err
}
