package model

import "time"

// TaskDraft is the best-effort task shape recovered from a remote calendar
// event during import.
type TaskDraft struct {
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	ScheduledDate time.Time `json:"scheduledDate"`
	TimeEstimate  int       `json:"timeEstimate,omitempty"` // minutes
}
