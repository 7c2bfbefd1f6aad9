package monitor

import (
	"time"

	"github.com/tphakala/healthmon/internal/conf"
)

// HealthStatus is the overall verdict of a health check
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

// Level maps a status to 0 (healthy), 1 (warning) or 2 (critical)
func (s HealthStatus) Level() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 0
	}
}

// ComponentStatus is the reachability of a dependency
type ComponentStatus string

const (
	ComponentHealthy     ComponentStatus = "healthy"
	ComponentError       ComponentStatus = "error"
	ComponentUnavailable ComponentStatus = "unavailable" // not configured
)

// Level maps a component status to 1 (healthy), 0 (error) or -1 (unavailable)
func (s ComponentStatus) Level() int {
	switch s {
	case ComponentHealthy:
		return 1
	case ComponentUnavailable:
		return -1
	default:
		return 0
	}
}

// TaskStatus is the state of a job in the job store
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// HealthThresholds holds per-resource warning and critical levels
type HealthThresholds = conf.HealthThresholdSettings

// DefaultHealthThresholds returns the built-in health thresholds
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		CPU:                conf.ThresholdPair{Warning: 70, Critical: 90},
		Memory:             conf.ThresholdPair{Warning: 70, Critical: 90},
		Disk:               conf.ThresholdPair{Warning: 80, Critical: 95},
		ErrorRate:          conf.ThresholdPair{Warning: 5, Critical: 15},
		ResponseTime:       conf.ThresholdPair{Warning: 5, Critical: 10},
		StuckJobs:          1,
		FailedTasksWarning: 10,
	}
}

// SystemHealth is a point in time health snapshot. It is built once per
// check and passed by value.
type SystemHealth struct {
	Status              HealthStatus    `json:"status"`
	CPUUsage            float64         `json:"cpu_usage"`    // percent
	MemoryUsage         float64         `json:"memory_usage"` // percent
	DiskUsage           float64         `json:"disk_usage"`   // percent
	DatabaseStatus      ComponentStatus `json:"database_status"`
	CacheStatus         ComponentStatus `json:"cache_status"`
	ActiveTasks         int             `json:"active_tasks"`
	QueuedTasks         int             `json:"queued_tasks"`
	FailedTasksLastHour int             `json:"failed_tasks_last_hour"`
	AvgProcessingTime   float64         `json:"avg_processing_time"` // seconds
	DegradedProbes      []string        `json:"degraded_probes,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
}

// criticalSnapshot is returned when collection fails as a whole
func criticalSnapshot(ts time.Time) SystemHealth {
	return SystemHealth{
		Status:         StatusCritical,
		DatabaseStatus: ComponentError,
		CacheStatus:    ComponentError,
		DegradedProbes: []string{"collector"},
		Timestamp:      ts,
	}
}

// TaskStats are job counts used by the health verdict
type TaskStats struct {
	Running        int `json:"running"`
	Queued         int `json:"queued"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
	FailedLastHour int `json:"failed_last_hour"`
}

// ResourceUsage is a detailed resource breakdown
type ResourceUsage struct {
	CPUPercent          float64   `json:"cpu_percent"`
	MemoryPercent       float64   `json:"memory_percent"`
	MemoryUsedMB        float64   `json:"memory_used_mb"`
	MemoryTotalMB       float64   `json:"memory_total_mb"`
	DiskPercent         float64   `json:"disk_percent"`
	DiskUsedGB          float64   `json:"disk_used_gb"`
	DiskTotalGB         float64   `json:"disk_total_gb"`
	NetworkBytesSent    uint64    `json:"network_bytes_sent"`
	NetworkBytesRecv    uint64    `json:"network_bytes_recv"`
	DatabaseConnections int       `json:"database_connections"`
	CacheMemoryMB       float64   `json:"cache_memory_mb"`
	CPUModel            string    `json:"cpu_model,omitempty"`
	LogicalCores        int       `json:"logical_cores,omitempty"`
	Degraded            bool      `json:"degraded"`
	DegradedProbes      []string  `json:"degraded_probes,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Throughput counts jobs in the last hour
type Throughput struct {
	Created   int `json:"created"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// PerformanceMetrics summarizes job processing performance
type PerformanceMetrics struct {
	JobCompletionRate float64            `json:"job_completion_rate"` // jobs per hour
	AvgProcessingTime float64            `json:"avg_processing_time"` // seconds, 24h window
	SuccessRate       float64            `json:"success_rate"`        // percent
	ErrorRate         float64            `json:"error_rate"`          // percent
	QueueWaitTime     int                `json:"queue_wait_time"`     // predicted seconds
	ResourceUsage     map[string]float64 `json:"resource_usage"`
	Throughput        Throughput         `json:"throughput"`
	Timestamp         time.Time          `json:"timestamp"`
}

// FailedTask is a failed job as reported by the job store
type FailedTask struct {
	ID           string    `json:"id"`
	ErrorMessage string    `json:"error_message"`
	UserID       string    `json:"user_id,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// RecentError is one entry of ErrorTrends.RecentErrors
type RecentError struct {
	TaskID      string        `json:"task_id"`
	Message     string        `json:"message"`
	Category    ErrorCategory `json:"category"`
	UserID      string        `json:"user_id,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ErrorPattern flags a category that occurs unusually often
type ErrorPattern struct {
	Type        string        `json:"type"`
	Category    ErrorCategory `json:"category"`
	Count       int           `json:"count"`
	Description string        `json:"description"`
}

// ErrorTrends summarizes job failures over a time window
type ErrorTrends struct {
	TotalErrors     int                   `json:"total_errors"`
	ErrorRate       float64               `json:"error_rate"` // percent of created jobs
	ErrorCategories map[ErrorCategory]int `json:"error_categories"`
	RecentErrors    []RecentError         `json:"recent_errors"`
	Patterns        []ErrorPattern        `json:"patterns"`
	FailuresByUser  map[string]int        `json:"failures_by_user,omitempty"`
	WindowHours     int                   `json:"window_hours"`
	WindowStart     time.Time             `json:"window_start"`
	Timestamp       time.Time             `json:"timestamp"`
}

// ProbeResult is the outcome of a single probe. A degraded result carries
// the zero value and the reason in Err.
type ProbeResult[T any] struct {
	Value    T
	Degraded bool
	Err      error
}

// Ok wraps a successful probe value
func Ok[T any](v T) ProbeResult[T] {
	return ProbeResult[T]{Value: v}
}

// Failed wraps a probe failure
func Failed[T any](err error) ProbeResult[T] {
	return ProbeResult[T]{Degraded: true, Err: err}
}
