package datastore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/monitor"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(&conf.DatabaseSettings{
		Driver: DriverSQLite,
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "data", "healthmon.db")},
	})
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func at(offset time.Duration) *time.Time {
	ts := testNow.Add(offset)
	return &ts
}

func seedTasks(t *testing.T, s *Store) {
	t.Helper()
	tasks := []Task{
		{ID: "q1", Status: monitor.TaskQueued, CreatedAt: testNow.Add(-5 * time.Minute)},
		{ID: "q2", Status: monitor.TaskQueued, CreatedAt: testNow.Add(-2 * time.Hour)},
		{ID: "r-fresh", Status: monitor.TaskRunning, CreatedAt: testNow.Add(-10 * time.Minute), StartedAt: at(-10 * time.Minute)},
		{ID: "r-stuck", Status: monitor.TaskRunning, CreatedAt: testNow.Add(-3 * time.Hour), StartedAt: at(-2 * time.Hour)},
		{ID: "c1", Status: monitor.TaskCompleted, CreatedAt: testNow.Add(-50 * time.Minute), StartedAt: at(-40 * time.Minute), CompletedAt: at(-38 * time.Minute)},
		{ID: "c2", Status: monitor.TaskCompleted, CreatedAt: testNow.Add(-30 * time.Minute), StartedAt: at(-20 * time.Minute), CompletedAt: at(-16 * time.Minute)},
		{ID: "c-old", Status: monitor.TaskCompleted, CreatedAt: testNow.Add(-30 * time.Hour), StartedAt: at(-30 * time.Hour), CompletedAt: at(-29 * time.Hour)},
		{ID: "f1", Status: monitor.TaskFailed, UserID: "u1", ErrorMessage: "connection timeout", CreatedAt: testNow.Add(-40 * time.Minute), StartedAt: at(-35 * time.Minute), CompletedAt: at(-30 * time.Minute)},
		{ID: "f2", Status: monitor.TaskFailed, UserID: "u2", ErrorMessage: "out of memory", CreatedAt: testNow.Add(-5 * time.Hour), StartedAt: at(-5 * time.Hour), CompletedAt: at(-4 * time.Hour)},
	}
	for i := range tasks {
		require.NoError(t, s.SaveTask(t.Context(), &tasks[i]))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(&conf.DatabaseSettings{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = Open(nil)
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn := mysqlDSN(&conf.MySQLSettings{
		Host: "db.internal", Username: "hm", Password: "p@ss:word", Database: "jobs",
	})
	assert.True(t, strings.HasPrefix(dsn, "hm:p@ss:word@tcp(db.internal:3306)/jobs?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestJobStoreCounts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTasks(t, s)
	ctx := t.Context()

	tests := []struct {
		status monitor.TaskStatus
		want   int
	}{
		{monitor.TaskQueued, 2},
		{monitor.TaskRunning, 2},
		{monitor.TaskCompleted, 3},
		{monitor.TaskFailed, 2},
		{monitor.TaskCancelled, 0},
	}
	for _, tt := range tests {
		got, err := s.CountByStatus(ctx, tt.status)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.status)
	}

	failed, err := s.CountFailedSince(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	created, err := s.CountCreatedInWindow(ctx, testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	assert.Equal(t, 5, created, "q1, r-fresh, c1, c2, f1")

	completed, err := s.CountCompletedInWindow(ctx, testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)
}

func TestFindStuckRunning(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTasks(t, s)

	ids, err := s.FindStuckRunning(t.Context(), testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"r-stuck"}, ids)

	ids, err = s.FindStuckRunning(t.Context(), testNow.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids, "started exactly at the cutoff is not stuck")
}

func TestFindFailedInWindow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTasks(t, s)

	failed, err := s.FindFailedInWindow(t.Context(), testNow.Add(-24*time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "f1", failed[0].ID, "newest first")
	assert.Equal(t, "connection timeout", failed[0].ErrorMessage)
	assert.Equal(t, "u1", failed[0].UserID)
	assert.True(t, failed[0].CompletedAt.Equal(*at(-30 * time.Minute)))
	assert.Equal(t, "f2", failed[1].ID)
}

func TestAverageProcessingTime(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTasks(t, s)

	avg, ok, err := s.AverageProcessingTime(t.Context(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 180, avg, 0.001, "c1 took 120s and c2 took 240s")

	avg, ok, err = s.AverageProcessingTime(t.Context(), 48)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, (120.0+240.0+3600.0)/3, avg, 0.001)

	empty := newTestStore(t)
	_, ok, err = empty.AverageProcessingTime(t.Context(), 24)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshots(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	for i, status := range []monitor.HealthStatus{monitor.StatusHealthy, monitor.StatusWarning, monitor.StatusCritical} {
		h := monitor.SystemHealth{
			Status:         status,
			CPUUsage:       float64(50 + i*20),
			DatabaseStatus: monitor.ComponentHealthy,
			CacheStatus:    monitor.ComponentUnavailable,
			Timestamp:      testNow.Add(time.Duration(i-2) * 24 * time.Hour),
		}
		if status == monitor.StatusCritical {
			h.DegradedProbes = []string{"cpu", "disk"}
		}
		require.NoError(t, s.SaveSnapshot(ctx, &h))
	}

	got, err := s.Snapshots(ctx, testNow.Add(-36*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, monitor.StatusWarning, got[0].Status)
	assert.Equal(t, monitor.StatusCritical, got[1].Status)
	assert.Equal(t, []string{"cpu", "disk"}, got[1].DegradedProbes)
	assert.Nil(t, got[0].DegradedProbes)
	assert.InDelta(t, 90, got[1].CPUUsage, 0)

	deleted, err := s.PruneSnapshots(ctx, 36*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	all, err := s.Snapshots(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPingAndConnections(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Ping(t.Context()))

	n, err := s.OpenConnections(t.Context())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	assert.Equal(t, DriverSQLite, s.Driver())

	require.NoError(t, s.Close())
	require.Error(t, s.Ping(context.Background()))
}

func TestStoreFeedsMonitor(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedTasks(t, s)

	wait := monitor.NewPerformancePredictor(s, 4).PredictQueueWait(t.Context())
	assert.Positive(t, wait)
}
