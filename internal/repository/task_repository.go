package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskplanner/internal/model"
)

// TaskRepository handles CRUD for tasks and boards, including the fields the
// calendar sync layer writes back (remote linkage and sync state).
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListVisible returns tasks that can appear in a calendar window: anything
// with a date plus every recurring template.
func (r *TaskRepository) ListVisible(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND (scheduled_date IS NOT NULL OR start_date IS NOT NULL OR due_date IS NOT NULL OR recurring IS NOT NULL)", userID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListNeedingSync returns tasks whose remote state is out of step with the
// local row: scheduled but unsynced, or unscheduled with a dangling linkage.
func (r *TaskRepository) ListNeedingSync(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(
			r.db.Where("google_calendar_synced = ? AND (scheduled_date IS NOT NULL OR start_date IS NOT NULL)", false).
				Or("google_calendar_event_id <> '' AND scheduled_date IS NULL AND start_date IS NULL"),
		).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListLinkedEventIDs returns every remote event id already tied to a local task.
func (r *TaskRepository) ListLinkedEventIDs(ctx context.Context, userID uint) (map[string]bool, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND google_calendar_event_id <> ''", userID).
		Pluck("google_calendar_event_id", &ids).Error; err != nil {
		return nil, err
	}
	linked := make(map[string]bool, len(ids))
	for _, id := range ids {
		linked[id] = true
	}
	return linked, nil
}

// SetLinkage records the remote event id on a task after a successful create
// or update.
func (r *TaskRepository) SetLinkage(ctx context.Context, taskID uint, eventID string) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"google_calendar_event_id": eventID,
			"google_calendar_synced":   true,
		}).Error; err != nil {
		return fmt.Errorf("set linkage: %w", err)
	}
	return nil
}

// ClearLinkage tears down the remote linkage after the event was deleted.
func (r *TaskRepository) ClearLinkage(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"google_calendar_event_id": "",
			"google_calendar_synced":   false,
		}).Error; err != nil {
		return fmt.Errorf("clear linkage: %w", err)
	}
	return nil
}

// MarkSyncFailed flags a task whose last reconciliation attempt failed.
func (r *TaskRepository) MarkSyncFailed(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Update("google_calendar_synced", false).Error; err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task, completedAt time.Time) error {
	task.Status = model.StatusDone
	task.CompletedAt = &completedAt
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkIncomplete(ctx context.Context, task *model.Task) error {
	task.Status = model.StatusTodo
	task.CompletedAt = nil
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}
	return nil
}

// Delete removes a task and cascades its completion overrides.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&model.RecurringInstance{}).Error; err != nil {
			return fmt.Errorf("delete task instances: %w", err)
		}
		if err := tx.Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{}).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// FindBoard loads a task's board, if it has one.
func (r *TaskRepository) FindBoard(ctx context.Context, boardID uint) (*model.Board, error) {
	var board model.Board
	if err := r.db.WithContext(ctx).First(&board, boardID).Error; err != nil {
		return nil, err
	}
	return &board, nil
}

// GetOrCreateBoard finds or creates a board by name for the given user.
func (r *TaskRepository) GetOrCreateBoard(ctx context.Context, userID uint, name, color string) (*model.Board, error) {
	if name == "" {
		return nil, nil
	}

	var board model.Board
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", userID, name).First(&board).Error
	switch {
	case err == nil:
		return &board, nil
	case err == gorm.ErrRecordNotFound:
		board = model.Board{UserID: userID, Name: name, Color: color}
		if err := db.Create(&board).Error; err != nil {
			return nil, fmt.Errorf("create board: %w", err)
		}
		return &board, nil
	default:
		return nil, fmt.Errorf("find board: %w", err)
	}
}
