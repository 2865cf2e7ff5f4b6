package service

import (
	"context"
	"errors"
	"log"
	"sync"

	gcal "google.golang.org/api/calendar/v3"
	"gorm.io/gorm"

	"taskplanner/internal/calendar"
	"taskplanner/internal/config"
	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

// SyncResult is the outcome of reconciling one task.
type SyncResult struct {
	TaskID uint   `json:"taskId"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// SyncReport summarizes a manual sync run. One task's failure never aborts
// the batch; failures are listed per item.
type SyncReport struct {
	Synced   int          `json:"synced"`
	Failures []SyncResult `json:"failures,omitempty"`
}

// SyncService reconciles the remote calendar with local task state. It is the
// only component with side effects on the remote service. Reconciliation runs
// after the local write has already succeeded; remote failures are logged and
// recorded as synced=false, never retried automatically — retry is the user's
// manual sync action.
type SyncService struct {
	tasks  *repository.TaskRepository
	remote calendar.EventsAPI
	mapper *calendar.Mapper
	cfg    config.SyncConfig

	mu    sync.Mutex
	locks map[uint]*taskLock
}

func NewSyncService(tasks *repository.TaskRepository, remote calendar.EventsAPI, mapper *calendar.Mapper, cfg config.SyncConfig) *SyncService {
	return &SyncService{
		tasks:  tasks,
		remote: remote,
		mapper: mapper,
		cfg:    cfg,
		locks:  make(map[uint]*taskLock),
	}
}

// taskLock is one per-task reconciliation mutex plus the number of holders
// and waiters, so idle entries can be evicted from the map.
type taskLock struct {
	mu   sync.Mutex
	refs int
}

// lockTask serializes reconciliation per task id. Different tasks reconcile
// concurrently; successive mutations of the same task apply in order. The
// map entry is dropped when the last holder releases it.
func (s *SyncService) lockTask(taskID uint) func() {
	s.mu.Lock()
	l, ok := s.locks[taskID]
	if !ok {
		l = &taskLock{}
		s.locks[taskID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, taskID)
		}
		s.mu.Unlock()
	}
}

// OnTaskMutated reconciles the remote event after a local task write.
func (s *SyncService) OnTaskMutated(ctx context.Context, before, after *model.Task) error {
	if !s.cfg.Enabled || after == nil {
		return nil
	}
	unlock := s.lockTask(after.ID)
	defer unlock()
	return s.reconcile(ctx, after.UserID, after.ID)
}

// OnTaskDeleted tears down the remote event for a task that no longer exists
// locally. There is no local row left to flag, so failures are only logged.
func (s *SyncService) OnTaskDeleted(ctx context.Context, task model.Task) error {
	if !s.cfg.Enabled || !task.Linked() {
		return nil
	}
	unlock := s.lockTask(task.ID)
	defer unlock()

	err := s.remote.Delete(ctx, task.UserID, s.cfg.CalendarID, task.GoogleCalendarEventID)
	if err != nil && !calendar.IsNotFound(err) {
		log.Printf("sync: delete event for removed task %d: %v", task.ID, err)
		return err
	}
	return nil
}

// DeleteLocal removes the task row under the per-task lock, draining any
// in-flight reconciliation first, and returns the row as it stood at
// deletion. Without the drain, a create still reconciling would write its
// linkage into a void and strand the remote event.
func (s *SyncService) DeleteLocal(ctx context.Context, userID, taskID uint) (model.Task, error) {
	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.tasks.Delete(ctx, userID, taskID); err != nil {
		return model.Task{}, err
	}
	return *task, nil
}

// reconcile applies the decision table for one task. The row is re-read
// under the per-task lock rather than trusting the caller's value: a second
// mutation's snapshot can predate an earlier reconcile's linkage write, and
// deciding from it would issue a duplicate create.
func (s *SyncService) reconcile(ctx context.Context, userID, taskID uint) error {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Deleted meanwhile; the delete path owns the remote teardown.
		return nil
	}
	if err != nil {
		return err
	}

	schedulable := task.SchedulableDate() != nil

	switch {
	case s.cfg.OnlyScheduled && !schedulable && !task.Linked():
		// Nothing remote to maintain for an unscheduled, unlinked task.
		return nil
	case !schedulable && task.Linked():
		return s.teardown(ctx, task)
	case schedulable && task.Linked():
		return s.update(ctx, task)
	case schedulable:
		return s.create(ctx, task)
	default:
		return nil
	}
}

func (s *SyncService) create(ctx context.Context, task *model.Task) error {
	event, err := s.buildEvent(ctx, task)
	if err != nil {
		return s.fail(ctx, task, err)
	}
	created, err := s.remote.Insert(ctx, task.UserID, s.cfg.CalendarID, event)
	if err != nil {
		return s.fail(ctx, task, err)
	}
	// Follow-up write: the linkage id makes the next sync an update.
	if err := s.tasks.SetLinkage(ctx, task.ID, created.Id); err != nil {
		return err
	}
	task.GoogleCalendarEventID = created.Id
	task.GoogleCalendarSynced = true
	return nil
}

func (s *SyncService) update(ctx context.Context, task *model.Task) error {
	event, err := s.buildEvent(ctx, task)
	if err != nil {
		return s.fail(ctx, task, err)
	}
	if _, err := s.remote.Update(ctx, task.UserID, s.cfg.CalendarID, task.GoogleCalendarEventID, event); err != nil {
		return s.fail(ctx, task, err)
	}
	if err := s.tasks.SetLinkage(ctx, task.ID, task.GoogleCalendarEventID); err != nil {
		return err
	}
	task.GoogleCalendarSynced = true
	return nil
}

// teardown deletes the remote event and clears the linkage as one logical
// step, so an unscheduled task is never left pointing at a live event.
func (s *SyncService) teardown(ctx context.Context, task *model.Task) error {
	err := s.remote.Delete(ctx, task.UserID, s.cfg.CalendarID, task.GoogleCalendarEventID)
	if err != nil && !calendar.IsNotFound(err) {
		return s.fail(ctx, task, err)
	}
	if err := s.tasks.ClearLinkage(ctx, task.ID); err != nil {
		return err
	}
	task.GoogleCalendarEventID = ""
	task.GoogleCalendarSynced = false
	return nil
}

func (s *SyncService) buildEvent(ctx context.Context, task *model.Task) (*gcal.Event, error) {
	var board *model.Board
	if task.BoardID != nil {
		if b, err := s.tasks.FindBoard(ctx, *task.BoardID); err == nil {
			board = b
		}
	}
	return s.mapper.ToEvent(*task, board)
}

func (s *SyncService) fail(ctx context.Context, task *model.Task, cause error) error {
	log.Printf("sync: task %d (%s): %v", task.ID, task.Title, cause)
	if err := s.tasks.MarkSyncFailed(ctx, task.ID); err != nil {
		log.Printf("sync: mark task %d failed: %v", task.ID, err)
	}
	task.GoogleCalendarSynced = false
	return cause
}

// ManualSync reconciles every task whose local and remote state disagree.
// This is the only retry path for earlier failures.
func (s *SyncService) ManualSync(ctx context.Context, userID uint) (SyncReport, error) {
	var report SyncReport
	if !s.cfg.Enabled {
		return report, nil
	}

	tasks, err := s.tasks.ListNeedingSync(ctx, userID)
	if err != nil {
		return report, err
	}
	for i := range tasks {
		task := tasks[i]
		unlock := s.lockTask(task.ID)
		err := s.reconcile(ctx, task.UserID, task.ID)
		unlock()
		if err != nil {
			report.Failures = append(report.Failures, SyncResult{
				TaskID: task.ID,
				Title:  task.Title,
				Reason: err.Error(),
			})
			continue
		}
		report.Synced++
	}
	return report, nil
}
