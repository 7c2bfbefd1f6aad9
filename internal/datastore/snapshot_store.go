package datastore

import (
	"context"
	"time"

	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/monitor"
)

var _ monitor.SnapshotStore = (*Store)(nil)

func (s *Store) SaveSnapshot(ctx context.Context, h *monitor.SystemHealth) error {
	row := snapshotFromHealth(h)
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return s.dbError(err, "save_snapshot")
	}
	return nil
}

// Snapshots returns snapshots taken at or after since, oldest first
func (s *Store) Snapshots(ctx context.Context, since time.Time) ([]monitor.SystemHealth, error) {
	var rows []HealthSnapshot
	err := s.DB.WithContext(ctx).
		Where("timestamp >= ?", since.UTC()).
		Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, s.dbError(err, "list_snapshots")
	}

	out := make([]monitor.SystemHealth, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toHealth())
	}
	return out, nil
}

// PruneSnapshots deletes snapshots older than retention and returns the count
func (s *Store) PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UTC()
	res := s.DB.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&HealthSnapshot{})
	if res.Error != nil {
		return 0, s.dbError(res.Error, "prune_snapshots")
	}
	if res.RowsAffected > 0 {
		s.log.Info("pruned health snapshots",
			logger.Int64("deleted", res.RowsAffected),
			logger.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}
