package store

import (
	"context"
	"fmt"

	"github.com/ifuryst/inkwell/internal/models"
)

// CreateRunLog inserts a run log entry.
func (s *GormStore) CreateRunLog(ctx context.Context, entry *models.RunLog) error {
	entry.StartedAt = entry.StartedAt.UTC()
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create run log: %w", err)
	}
	return nil
}

// UpdateRunLog writes the given columns of a run log entry.
func (s *GormStore) UpdateRunLog(ctx context.Context, id uint, fields map[string]any) error {
	err := s.db.WithContext(ctx).
		Model(&models.RunLog{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update run log %d: %w", id, err)
	}
	return nil
}

// ListRunLogs returns the most recent entries, newest first.
func (s *GormStore) ListRunLogs(ctx context.Context, limit int) ([]models.RunLog, error) {
	var entries []models.RunLog
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	return entries, nil
}

// PruneRunLogs deletes the oldest entries so that at most keep remain. It
// returns the number of deleted rows. keep <= 0 disables pruning.
func (s *GormStore) PruneRunLogs(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.RunLog{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count run logs: %w", err)
	}
	if total <= int64(keep) {
		return 0, nil
	}

	var keepIDs []uint
	err := s.db.WithContext(ctx).
		Model(&models.RunLog{}).
		Order("id DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return 0, fmt.Errorf("failed to select retained run logs: %w", err)
	}
	if len(keepIDs) == 0 {
		return 0, nil
	}

	oldestKept := keepIDs[len(keepIDs)-1]
	result := s.db.WithContext(ctx).
		Where("id < ?", oldestKept).
		Delete(&models.RunLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune run logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
