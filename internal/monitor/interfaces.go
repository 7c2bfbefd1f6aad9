package monitor

import (
	"context"
	"time"

	"github.com/tphakala/healthmon/internal/alerting"
)

// JobStore answers the job queue questions the monitor asks every cycle
type JobStore interface {
	CountByStatus(ctx context.Context, status TaskStatus) (int, error)
	CountFailedSince(ctx context.Context, since time.Time) (int, error)
	// FindStuckRunning returns ids of running jobs started strictly before the given time
	FindStuckRunning(ctx context.Context, before time.Time) ([]string, error)
	FindFailedInWindow(ctx context.Context, start, end time.Time) ([]FailedTask, error)
	// AverageProcessingTime is the mean duration in seconds of jobs completed
	// in the last windowHours. ok is false when there is no data.
	AverageProcessingTime(ctx context.Context, windowHours int) (seconds float64, ok bool, err error)
	CountCreatedInWindow(ctx context.Context, start, end time.Time) (int, error)
	CountCompletedInWindow(ctx context.Context, start, end time.Time) (int, error)
}

// ResourceProbe reads host resource usage. Implementations never panic
// across this boundary and report failure through ProbeResult.
type ResourceProbe interface {
	CPUPercent(ctx context.Context) ProbeResult[float64]
	MemoryPercent(ctx context.Context) ProbeResult[float64]
	DiskPercent(ctx context.Context) ProbeResult[float64]
}

// MemoryDetail is absolute memory usage
type MemoryDetail struct {
	UsedBytes  uint64
	TotalBytes uint64
}

// DiskDetail is absolute usage of the fullest monitored filesystem
type DiskDetail struct {
	MountPoint string
	UsedBytes  uint64
	TotalBytes uint64
}

// NetworkIO is cumulative traffic over all interfaces
type NetworkIO struct {
	BytesSent uint64
	BytesRecv uint64
}

// CPUInfo describes the host processor
type CPUInfo struct {
	Model        string
	LogicalCores int
}

// ResourceDetailProbe is optionally implemented by a ResourceProbe to
// provide the absolute numbers reported by CollectResourceUsage
type ResourceDetailProbe interface {
	MemoryDetail(ctx context.Context) ProbeResult[MemoryDetail]
	DiskDetail(ctx context.Context) ProbeResult[DiskDetail]
	NetworkIO(ctx context.Context) ProbeResult[NetworkIO]
	CPUInfo() CPUInfo
}

// ConnectivityProbe checks the database and cache dependencies
type ConnectivityProbe interface {
	PingDatabase(ctx context.Context) ComponentStatus
	PingCache(ctx context.Context) ComponentStatus
}

// DBStatsProvider is optionally implemented by a ConnectivityProbe
type DBStatsProvider interface {
	OpenConnections(ctx context.Context) (int, error)
}

// CacheInfoProvider is optionally implemented by a ConnectivityProbe
type CacheInfoProvider interface {
	CacheMemoryBytes(ctx context.Context) (uint64, error)
}

// SnapshotStore persists health snapshots
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, h *SystemHealth) error
	Snapshots(ctx context.Context, since time.Time) ([]SystemHealth, error)
}

// LatencyProbe measures how long a dependency takes to answer
type LatencyProbe interface {
	Measure(ctx context.Context) (time.Duration, error)
}

// AlertSender is the part of the alert engine the monitor drives
type AlertSender interface {
	SendAlert(ctx context.Context, alertType alerting.AlertType, message string, severity alerting.Severity, alertCtx map[string]any) string
	EvaluateMetrics(ctx context.Context, m *alerting.MetricsSnapshot) []string
	CheckEscalations(ctx context.Context) []string
}
