// Package calendar maps planner tasks onto Google Calendar events and owns
// the remote event CRUD surface.
package calendar

import (
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"taskplanner/internal/model"
)

// MappingError reports a task or event that cannot be converted. It is a data
// problem: callers skip the item and never retry.
type MappingError struct {
	Reason string
}

func (e *MappingError) Error() string {
	return "mapping: " + e.Reason
}

const defaultEventMinutes = 60

// Labels rendered into the event description and shown to the user.
var (
	priorityLabels = map[string]string{
		"low":    "Low",
		"medium": "Medium",
		"high":   "High",
		"urgent": "Urgent",
	}
	statusLabels = map[string]string{
		model.StatusTodo:       "To Do",
		model.StatusInProgress: "In Progress",
		model.StatusDone:       "Done",
	}
)

// Mapper converts between tasks and calendar event payloads. It is pure; the
// only state is the user's planning timezone.
type Mapper struct {
	loc *time.Location
}

func NewMapper(loc *time.Location) *Mapper {
	if loc == nil {
		loc = time.UTC
	}
	return &Mapper{loc: loc}
}

// ToEvent builds the event payload for a task. The start is the scheduled (or
// start) date; the end is start plus the time estimate, unless the task has
// both an explicit start and due date, which win over the estimate.
func (m *Mapper) ToEvent(task model.Task, board *model.Board) (*gcal.Event, error) {
	scheduled := task.SchedulableDate()
	if scheduled == nil {
		return nil, &MappingError{Reason: fmt.Sprintf("task %d has no schedulable date", task.ID)}
	}

	start := m.inLocation(*scheduled)
	var end time.Time
	if task.StartDate != nil && task.DueDate != nil {
		start = m.inLocation(*task.StartDate)
		end = m.inLocation(*task.DueDate)
	} else {
		minutes := task.TimeEstimate
		if minutes <= 0 {
			minutes = defaultEventMinutes
		}
		end = start.Add(time.Duration(minutes) * time.Minute)
	}

	summary := task.Title
	if board != nil && board.Name != "" {
		summary = fmt.Sprintf("[%s] %s", board.Name, task.Title)
	}

	event := &gcal.Event{
		Summary:     summary,
		Description: m.describe(task, board),
		Start: &gcal.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: m.loc.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: m.loc.String(),
		},
	}
	if board != nil {
		event.ColorId = EventColorID(board.Color)
	}
	return event, nil
}

// describe composes the event description. Line order is a contract; empty
// and zero fields are omitted.
func (m *Mapper) describe(task model.Task, board *model.Board) string {
	var lines []string
	if board != nil && board.Name != "" {
		lines = append(lines, "Board: "+board.Name)
	}
	if desc := strings.TrimSpace(task.Description); desc != "" {
		lines = append(lines, desc)
	}
	if task.TimeEstimate > 0 {
		lines = append(lines, "Time estimate: "+formatMinutes(task.TimeEstimate))
	}
	if label := label(priorityLabels, task.Priority); label != "" {
		lines = append(lines, "Priority: "+label)
	}
	if task.Category != "" {
		lines = append(lines, "Category: "+task.Category)
	}
	if label := label(statusLabels, task.Status); label != "" {
		lines = append(lines, "Status: "+label)
	}
	if task.Tags != "" {
		lines = append(lines, "Tags: "+task.Tags)
	}
	if task.Progress > 0 {
		lines = append(lines, fmt.Sprintf("Progress: %d%%", task.Progress))
	}
	if task.TimeSpent > 0 {
		lines = append(lines, "Time spent: "+formatMinutes(task.TimeSpent))
	}
	return strings.Join(lines, "\n")
}

// FromEvent is the best-effort inverse used by import. Events without a
// parseable start time are rejected rather than defaulted to "now".
func (m *Mapper) FromEvent(event *gcal.Event) (model.TaskDraft, error) {
	var draft model.TaskDraft

	start, err := m.parseEventTime(event.Start)
	if err != nil {
		return draft, err
	}

	draft.Title = stripBoardPrefix(event.Summary)
	if draft.Title == "" {
		draft.Title = "(untitled event)"
	}
	draft.Description = stripStructuredLines(event.Description)
	draft.ScheduledDate = start

	if end, err := m.parseEventTime(event.End); err == nil && end.After(start) {
		draft.TimeEstimate = int(end.Sub(start) / time.Minute)
	}
	return draft, nil
}

func (m *Mapper) parseEventTime(edt *gcal.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, &MappingError{Reason: "event has no start time"}
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, &MappingError{Reason: "unparseable event time " + edt.DateTime}
		}
		return t.In(m.loc), nil
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation(time.DateOnly, edt.Date, m.loc)
		if err != nil {
			return time.Time{}, &MappingError{Reason: "unparseable event date " + edt.Date}
		}
		return t, nil
	}
	return time.Time{}, &MappingError{Reason: "event has no start time"}
}

// inLocation reinterprets the stored wall-clock fields in the planning
// timezone. Stored dates carry no zone semantics of their own.
func (m *Mapper) inLocation(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, m.loc)
}

func label(labels map[string]string, value string) string {
	if value == "" {
		return ""
	}
	if l, ok := labels[value]; ok {
		return l
	}
	return value
}

func formatMinutes(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

func stripBoardPrefix(summary string) string {
	summary = strings.TrimSpace(summary)
	if strings.HasPrefix(summary, "[") {
		if idx := strings.Index(summary, "] "); idx > 0 {
			return summary[idx+2:]
		}
	}
	return summary
}

var structuredPrefixes = []string{
	"Board: ", "Time estimate: ", "Priority: ", "Category: ",
	"Status: ", "Tags: ", "Progress: ", "Time spent: ",
}

// stripStructuredLines recovers the free-text portion of a description the
// mapper itself produced.
func stripStructuredLines(description string) string {
	if description == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(description, "\n") {
		structured := false
		for _, prefix := range structuredPrefixes {
			if strings.HasPrefix(line, prefix) {
				structured = true
				break
			}
		}
		if !structured {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
