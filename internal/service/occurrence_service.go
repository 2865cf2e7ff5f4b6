package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"taskplanner/internal/model"
	"taskplanner/internal/recurrence"
	"taskplanner/internal/repository"
)

// OccurrenceService materializes the bounded set of occurrences visible in a
// calendar window and routes occurrence completion. Completing an occurrence
// of a recurring template writes an override row; the template itself is
// never mutated.
type OccurrenceService struct {
	tasks     *repository.TaskRepository
	instances *repository.InstanceRepository
	now       func() time.Time
}

func NewOccurrenceService(tasks *repository.TaskRepository, instances *repository.InstanceRepository) *OccurrenceService {
	return &OccurrenceService{tasks: tasks, instances: instances, now: time.Now}
}

// Window returns every occurrence falling inside [from, to], ascending by
// date. A template with a malformed recurrence is shown as a single
// occurrence rather than dropped.
func (s *OccurrenceService) Window(ctx context.Context, userID uint, from, to time.Time) ([]model.TaskOccurrence, error) {
	tasks, err := s.tasks.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []model.TaskOccurrence
	for i := range tasks {
		task := tasks[i]
		if task.Recurring == nil {
			if occ, ok := singleOccurrence(task, from, to); ok {
				out = append(out, occ)
			}
			continue
		}

		occs, err := recurrence.Expand(task, from, to, recurrence.DefaultMaxInstances)
		if err != nil {
			log.Printf("occurrences: expand task %d: %v; falling back to single occurrence", task.ID, err)
			if occ, ok := singleOccurrence(task, from, to); ok {
				out = append(out, occ)
			}
			continue
		}
		if len(occs) == 0 {
			continue
		}

		completion, err := s.instances.CompletionMap(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		for j := range occs {
			occs[j].Completed = completion[occs[j].InstanceDate]
		}
		out = append(out, occs...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InstanceDate != out[j].InstanceDate {
			return out[i].InstanceDate < out[j].InstanceDate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Complete marks one occurrence done. Recurring templates get an override
// row; plain tasks are completed on the task row itself.
func (s *OccurrenceService) Complete(ctx context.Context, userID, taskID uint, instanceDate string) error {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Recurring == nil {
		return s.tasks.MarkCompleted(ctx, task, s.now())
	}
	if err := validInstanceDate(instanceDate); err != nil {
		return err
	}
	return s.instances.MarkCompleted(ctx, taskID, instanceDate, s.now())
}

// Uncomplete reverses Complete. Removing an override that does not exist is
// a success.
func (s *OccurrenceService) Uncomplete(ctx context.Context, userID, taskID uint, instanceDate string) error {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Recurring == nil {
		return s.tasks.MarkIncomplete(ctx, task)
	}
	if err := validInstanceDate(instanceDate); err != nil {
		return err
	}
	return s.instances.MarkIncomplete(ctx, taskID, instanceDate)
}

// IsCompleted reports one occurrence's completion state.
func (s *OccurrenceService) IsCompleted(ctx context.Context, userID, taskID uint, instanceDate string) (bool, error) {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return false, err
	}
	if task.Recurring == nil {
		return task.CompletedAt != nil, nil
	}
	return s.instances.IsCompleted(ctx, taskID, instanceDate)
}

func singleOccurrence(task model.Task, from, to time.Time) (model.TaskOccurrence, bool) {
	anchor := task.AnchorDate()
	if anchor == nil {
		return model.TaskOccurrence{}, false
	}
	date := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	lower := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	upper := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(lower) || date.After(upper) {
		return model.TaskOccurrence{}, false
	}
	return model.TaskOccurrence{
		Task:         task,
		InstanceDate: date.Format(time.DateOnly),
		Completed:    task.CompletedAt != nil,
	}, true
}

func validInstanceDate(instanceDate string) error {
	if _, err := time.Parse(time.DateOnly, instanceDate); err != nil {
		return fmt.Errorf("invalid instance date %q: %w", instanceDate, err)
	}
	return nil
}
