package model

import "time"

// Recurrence patterns.
const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
	PatternYearly  = "yearly"
)

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Recurrence describes how a template task repeats. Stored as a JSON column.
type Recurrence struct {
	Pattern      string     `json:"pattern"`
	Interval     int        `json:"interval"`
	DaysOfWeek   []int      `json:"daysOfWeek,omitempty"`   // 0=Sunday .. 6=Saturday
	DaysOfMonth  []int      `json:"daysOfMonth,omitempty"`  // 1..31
	MonthsOfYear []int      `json:"monthsOfYear,omitempty"` // 1..12
	EndDate      *time.Time `json:"endDate,omitempty"`
}

// Task represents a single item in the planner. A task with Recurring set is a
// template; concrete occurrences are derived per window and never stored.
type Task struct {
	ID            uint  `gorm:"primaryKey"`
	UserID        uint  `gorm:"index"`
	BoardID       *uint `gorm:"index"`
	Title         string
	Description   string
	Status        string `gorm:"default:todo"`
	Priority      string
	Category      string
	Tags          string // comma-separated
	Progress      int    // percent, 0..100
	TimeSpent     int    // minutes
	TimeEstimate  int    // minutes
	ScheduledDate *time.Time
	StartDate     *time.Time
	DueDate       *time.Time
	Recurring     *Recurrence `gorm:"serializer:json"`

	// Remote linkage: at most one calendar event per task.
	GoogleCalendarEventID string `gorm:"index"`
	GoogleCalendarSynced  bool   `gorm:"default:false"`

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AnchorDate is the date recurrence expansion starts from.
func (t *Task) AnchorDate() *time.Time {
	switch {
	case t.ScheduledDate != nil:
		return t.ScheduledDate
	case t.StartDate != nil:
		return t.StartDate
	default:
		return t.DueDate
	}
}

// SchedulableDate is the date a calendar event would be placed on, if any.
func (t *Task) SchedulableDate() *time.Time {
	if t.ScheduledDate != nil {
		return t.ScheduledDate
	}
	return t.StartDate
}

// Linked reports whether the task is tied to a remote calendar event.
func (t *Task) Linked() bool {
	return t.GoogleCalendarEventID != ""
}
