package datastore

import (
	"strings"
	"time"

	"github.com/tphakala/healthmon/internal/monitor"
)

// Task is one background job row. The embedding application writes these;
// the monitor only reads them.
type Task struct {
	ID           string             `gorm:"primaryKey;size:64"`
	UserID       string             `gorm:"size:64;index"`
	Status       monitor.TaskStatus `gorm:"size:16;not null;index:idx_tasks_status_started,priority:1;index:idx_tasks_status_completed,priority:1"`
	ErrorMessage string             `gorm:"type:text"`
	CreatedAt    time.Time          `gorm:"not null;index"`
	StartedAt    *time.Time         `gorm:"index:idx_tasks_status_started,priority:2"`
	CompletedAt  *time.Time         `gorm:"index:idx_tasks_status_completed,priority:2"`
}

// HealthSnapshot is a persisted SystemHealth
type HealthSnapshot struct {
	ID                  uint                 `gorm:"primaryKey"`
	Status              monitor.HealthStatus `gorm:"size:16;not null"`
	CPUUsage            float64
	MemoryUsage         float64
	DiskUsage           float64
	DatabaseStatus      monitor.ComponentStatus `gorm:"size:16"`
	CacheStatus         monitor.ComponentStatus `gorm:"size:16"`
	ActiveTasks         int
	QueuedTasks         int
	FailedTasksLastHour int
	AvgProcessingTime   float64
	DegradedProbes      string    `gorm:"size:255"` // comma separated
	Timestamp           time.Time `gorm:"not null;index"`
}

func snapshotFromHealth(h *monitor.SystemHealth) HealthSnapshot {
	return HealthSnapshot{
		Status:              h.Status,
		CPUUsage:            h.CPUUsage,
		MemoryUsage:         h.MemoryUsage,
		DiskUsage:           h.DiskUsage,
		DatabaseStatus:      h.DatabaseStatus,
		CacheStatus:         h.CacheStatus,
		ActiveTasks:         h.ActiveTasks,
		QueuedTasks:         h.QueuedTasks,
		FailedTasksLastHour: h.FailedTasksLastHour,
		AvgProcessingTime:   h.AvgProcessingTime,
		DegradedProbes:      strings.Join(h.DegradedProbes, ","),
		Timestamp:           h.Timestamp.UTC(),
	}
}

func (s *HealthSnapshot) toHealth() monitor.SystemHealth {
	h := monitor.SystemHealth{
		Status:              s.Status,
		CPUUsage:            s.CPUUsage,
		MemoryUsage:         s.MemoryUsage,
		DiskUsage:           s.DiskUsage,
		DatabaseStatus:      s.DatabaseStatus,
		CacheStatus:         s.CacheStatus,
		ActiveTasks:         s.ActiveTasks,
		QueuedTasks:         s.QueuedTasks,
		FailedTasksLastHour: s.FailedTasksLastHour,
		AvgProcessingTime:   s.AvgProcessingTime,
		Timestamp:           s.Timestamp,
	}
	if s.DegradedProbes != "" {
		h.DegradedProbes = strings.Split(s.DegradedProbes, ",")
	}
	return h
}
