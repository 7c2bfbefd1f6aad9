package datastore

import (
	"context"
	"time"

	"github.com/tphakala/healthmon/internal/monitor"
)

var _ monitor.JobStore = (*Store)(nil)

// SaveTask inserts or updates a task row
func (s *Store) SaveTask(ctx context.Context, t *Task) error {
	if err := s.DB.WithContext(ctx).Save(t).Error; err != nil {
		return s.dbError(err, "save_task")
	}
	return nil
}

func (s *Store) CountByStatus(ctx context.Context, status monitor.TaskStatus) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Task{}).Where("status = ?", status).Count(&n).Error
	if err != nil {
		return 0, s.dbError(err, "count_by_status")
	}
	return int(n), nil
}

func (s *Store) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Task{}).
		Where("status = ? AND completed_at >= ?", monitor.TaskFailed, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, s.dbError(err, "count_failed_since")
	}
	return int(n), nil
}

// FindStuckRunning returns running tasks started strictly before before
func (s *Store) FindStuckRunning(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&Task{}).
		Where("status = ? AND started_at < ?", monitor.TaskRunning, before.UTC()).
		Order("started_at").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, s.dbError(err, "find_stuck_running")
	}
	return ids, nil
}

// FindFailedInWindow returns failed tasks completed in [start, end), newest first
func (s *Store) FindFailedInWindow(ctx context.Context, start, end time.Time) ([]monitor.FailedTask, error) {
	var rows []Task
	err := s.DB.WithContext(ctx).
		Where("status = ? AND completed_at >= ? AND completed_at < ?", monitor.TaskFailed, start.UTC(), end.UTC()).
		Order("completed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, s.dbError(err, "find_failed_in_window")
	}

	out := make([]monitor.FailedTask, 0, len(rows))
	for i := range rows {
		ft := monitor.FailedTask{
			ID:           rows[i].ID,
			ErrorMessage: rows[i].ErrorMessage,
			UserID:       rows[i].UserID,
		}
		if rows[i].CompletedAt != nil {
			ft.CompletedAt = *rows[i].CompletedAt
		}
		out = append(out, ft)
	}
	return out, nil
}

// AverageProcessingTime averages completed_at - started_at in Go; date
// arithmetic differs between SQLite and MySQL and the window is bounded.
func (s *Store) AverageProcessingTime(ctx context.Context, windowHours int) (float64, bool, error) {
	since := s.now().Add(-time.Duration(windowHours) * time.Hour).UTC()

	var rows []struct {
		StartedAt   *time.Time
		CompletedAt *time.Time
	}
	err := s.DB.WithContext(ctx).Model(&Task{}).
		Select("started_at", "completed_at").
		Where("status = ? AND completed_at >= ? AND started_at IS NOT NULL", monitor.TaskCompleted, since).
		Find(&rows).Error
	if err != nil {
		return 0, false, s.dbError(err, "average_processing_time")
	}

	var (
		total time.Duration
		n     int
	)
	for _, r := range rows {
		if r.StartedAt == nil || r.CompletedAt == nil || r.CompletedAt.Before(*r.StartedAt) {
			continue
		}
		total += r.CompletedAt.Sub(*r.StartedAt)
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return total.Seconds() / float64(n), true, nil
}

func (s *Store) CountCreatedInWindow(ctx context.Context, start, end time.Time) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Task{}).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, s.dbError(err, "count_created_in_window")
	}
	return int(n), nil
}

func (s *Store) CountCompletedInWindow(ctx context.Context, start, end time.Time) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Task{}).
		Where("status = ? AND completed_at >= ? AND completed_at < ?", monitor.TaskCompleted, start.UTC(), end.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, s.dbError(err, "count_completed_in_window")
	}
	return int(n), nil
}
