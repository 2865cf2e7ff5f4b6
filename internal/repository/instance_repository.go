package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskplanner/internal/model"
)

// InstanceRepository persists completion overrides for recurring occurrences,
// keyed by (task id, instance date). Rows exist only for completed occurrences.
type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// MarkCompleted upserts a completion row for the given occurrence.
func (r *InstanceRepository) MarkCompleted(ctx context.Context, taskID uint, instanceDate string, completedAt time.Time) error {
	row := model.RecurringInstance{
		TaskID:       taskID,
		InstanceDate: instanceDate,
		CompletedAt:  &completedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "instance_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed_at", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("mark occurrence completed: %w", err)
	}
	return nil
}

// MarkIncomplete removes the completion row if present. Deleting an absent
// row is a success.
func (r *InstanceRepository) MarkIncomplete(ctx context.Context, taskID uint, instanceDate string) error {
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND instance_date = ?", taskID, instanceDate).
		Delete(&model.RecurringInstance{}).Error; err != nil {
		return fmt.Errorf("mark occurrence incomplete: %w", err)
	}
	return nil
}

// IsCompleted reports whether an occurrence has a completion row.
func (r *InstanceRepository) IsCompleted(ctx context.Context, taskID uint, instanceDate string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.RecurringInstance{}).
		Where("task_id = ? AND instance_date = ? AND completed_at IS NOT NULL", taskID, instanceDate).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CompletionMap returns instance date -> completed for bulk rendering.
func (r *InstanceRepository) CompletionMap(ctx context.Context, taskID uint) (map[string]bool, error) {
	var rows []model.RecurringInstance
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.CompletedAt != nil {
			completed[row.InstanceDate] = true
		}
	}
	return completed, nil
}

// DeleteForTask cascades overrides when the template itself is removed.
func (r *InstanceRepository) DeleteForTask(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&model.RecurringInstance{}).Error; err != nil {
		return fmt.Errorf("delete task occurrences: %w", err)
	}
	return nil
}
