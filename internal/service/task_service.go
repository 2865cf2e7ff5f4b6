package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

// TaskInput represents data required to create or update a task.
type TaskInput struct {
	Title         string
	Description   string
	Board         string
	BoardColor    string
	Priority      string
	Category      string
	Tags          string
	TimeEstimate  int
	ScheduledDate *time.Time
	StartDate     *time.Time
	DueDate       *time.Time
	Recurring     *model.Recurrence
}

// TaskService wraps task CRUD and hands every successful local write to the
// sync reconciler. Reconciliation runs in the background: it never blocks or
// rolls back the write it follows.
type TaskService struct {
	tasks    *repository.TaskRepository
	sync     *SyncService
	syncWait time.Duration
}

func NewTaskService(tasks *repository.TaskRepository, sync *SyncService) *TaskService {
	return &TaskService{
		tasks:    tasks,
		sync:     sync,
		syncWait: 30 * time.Second,
	}
}

func (s *TaskService) Create(ctx context.Context, userID uint, input TaskInput) (*model.Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	boardID, err := s.resolveBoard(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:        userID,
		BoardID:       boardID,
		Title:         input.Title,
		Description:   input.Description,
		Status:        model.StatusTodo,
		Priority:      input.Priority,
		Category:      input.Category,
		Tags:          input.Tags,
		TimeEstimate:  input.TimeEstimate,
		ScheduledDate: input.ScheduledDate,
		StartDate:     input.StartDate,
		DueDate:       input.DueDate,
		Recurring:     input.Recurring,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}

	s.syncAfterWrite(nil, task)
	return &task, nil
}

func (s *TaskService) Update(ctx context.Context, userID, taskID uint, input TaskInput) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	before := *task

	boardID, err := s.resolveBoard(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	task.BoardID = boardID
	if input.Title != "" {
		task.Title = input.Title
	}
	task.Description = input.Description
	task.Priority = input.Priority
	task.Category = input.Category
	task.Tags = input.Tags
	task.TimeEstimate = input.TimeEstimate
	task.ScheduledDate = input.ScheduledDate
	task.StartDate = input.StartDate
	task.DueDate = input.DueDate
	task.Recurring = input.Recurring

	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}

	s.syncAfterWrite(&before, *task)
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	return s.tasks.FindByID(ctx, userID, taskID)
}

// Delete removes a task and its completion overrides, then tears down the
// remote event in the background. The local delete goes through the sync
// layer's per-task lock so an in-flight reconcile finishes first and its
// linkage write is visible to the teardown.
func (s *TaskService) Delete(ctx context.Context, userID, taskID uint) error {
	if s.sync == nil {
		if _, err := s.tasks.FindByID(ctx, userID, taskID); err != nil {
			return err
		}
		return s.tasks.Delete(ctx, userID, taskID)
	}

	deleted, err := s.sync.DeleteLocal(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if !deleted.Linked() {
		return nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.syncWait)
		defer cancel()
		if err := s.sync.OnTaskDeleted(ctx, deleted); err != nil {
			log.Printf("task %d: remote teardown: %v", deleted.ID, err)
		}
	}()
	return nil
}

func (s *TaskService) resolveBoard(ctx context.Context, userID uint, input TaskInput) (*uint, error) {
	if input.Board == "" {
		return nil, nil
	}
	board, err := s.tasks.GetOrCreateBoard(ctx, userID, input.Board, input.BoardColor)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, nil
	}
	return &board.ID, nil
}

func (s *TaskService) syncAfterWrite(before *model.Task, after model.Task) {
	if s.sync == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.syncWait)
		defer cancel()
		if err := s.sync.OnTaskMutated(ctx, before, &after); err != nil {
			log.Printf("task %d: sync: %v", after.ID, err)
		}
	}()
}
