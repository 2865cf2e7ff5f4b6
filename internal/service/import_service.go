package service

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"taskplanner/internal/calendar"
	"taskplanner/internal/config"
	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

// ImportCandidate is a remote event offered for import as a local task.
type ImportCandidate struct {
	EventID string `json:"eventId"`
	model.TaskDraft
}

// ImportFailure describes one candidate that could not be imported.
type ImportFailure struct {
	EventID string `json:"eventId"`
	Title   string `json:"title"`
	Reason  string `json:"reason"`
}

// ImportReport is the outcome of confirming an import selection.
type ImportReport struct {
	Created  int             `json:"created"`
	Failures []ImportFailure `json:"failures,omitempty"`
}

// ImportFilter narrows the preview.
type ImportFilter struct {
	Search string
}

// ImportService pulls remote events and turns selected ones into local tasks.
// Events the planner itself created are recognized by their linkage id and
// excluded, so a sync round-trip never duplicates tasks.
type ImportService struct {
	tasks  *repository.TaskRepository
	remote calendar.EventsAPI
	mapper *calendar.Mapper
	cfg    config.SyncConfig
}

func NewImportService(tasks *repository.TaskRepository, remote calendar.EventsAPI, mapper *calendar.Mapper, cfg config.SyncConfig) *ImportService {
	return &ImportService{tasks: tasks, remote: remote, mapper: mapper, cfg: cfg}
}

// Preview lists importable remote events in the window, in start-time order.
// Events already linked to a local task and events without a usable start
// time are skipped.
func (s *ImportService) Preview(ctx context.Context, userID uint, from, to time.Time, filter ImportFilter) ([]ImportCandidate, error) {
	// The provider's TimeMax is exclusive; stretch it past the last day so a
	// date-only window covers the whole day.
	events, err := s.remote.Events(ctx, userID, s.cfg.CalendarID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	linked, err := s.tasks.ListLinkedEventIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var candidates []ImportCandidate
	for _, event := range events {
		if event.Id == "" || linked[event.Id] {
			continue
		}
		draft, err := s.mapper.FromEvent(event)
		if err != nil {
			log.Printf("import: skip event %s: %v", event.Id, err)
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(draft.Title), search) {
			continue
		}
		candidates = append(candidates, ImportCandidate{EventID: event.Id, TaskDraft: draft})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].ScheduledDate.Equal(candidates[j].ScheduledDate) {
			return candidates[i].ScheduledDate.Before(candidates[j].ScheduledDate)
		}
		return candidates[i].EventID < candidates[j].EventID
	})
	return candidates, nil
}

// Confirm creates a task per selected candidate. Each insert stands alone:
// one failure is reported and the batch continues. Imported tasks carry the
// remote linkage, so the next sync treats them as updates, never creates.
func (s *ImportService) Confirm(ctx context.Context, userID uint, candidates []ImportCandidate) (ImportReport, error) {
	var report ImportReport
	linked, err := s.tasks.ListLinkedEventIDs(ctx, userID)
	if err != nil {
		return report, err
	}

	for _, c := range candidates {
		if c.EventID != "" && linked[c.EventID] {
			report.Failures = append(report.Failures, ImportFailure{
				EventID: c.EventID,
				Title:   c.Title,
				Reason:  "already linked to a local task",
			})
			continue
		}

		scheduled := c.ScheduledDate
		task := model.Task{
			UserID:                userID,
			Title:                 c.Title,
			Description:           c.Description,
			Status:                model.StatusTodo,
			TimeEstimate:          c.TimeEstimate,
			ScheduledDate:         &scheduled,
			GoogleCalendarEventID: c.EventID,
			GoogleCalendarSynced:  true,
		}
		if err := s.tasks.Create(ctx, &task); err != nil {
			report.Failures = append(report.Failures, ImportFailure{
				EventID: c.EventID,
				Title:   c.Title,
				Reason:  err.Error(),
			})
			continue
		}
		if c.EventID != "" {
			linked[c.EventID] = true
		}
		report.Created++
	}
	return report, nil
}
