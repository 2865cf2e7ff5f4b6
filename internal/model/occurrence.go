package model

import (
	"fmt"
	"time"
)

// TaskOccurrence is one concrete, date-bound view of a task. For recurring
// templates the ScheduledDate is rebound to the instance date; the template
// row itself is never mutated.
type TaskOccurrence struct {
	Task
	InstanceDate        string `json:"instanceDate"` // YYYY-MM-DD
	RecurringInstanceID string `json:"recurringInstanceId,omitempty"`
	Completed           bool   `json:"completed"`
}

// InstanceID derives the stable identifier for one occurrence of a template.
func InstanceID(taskID uint, date time.Time) string {
	return fmt.Sprintf("%d:%s", taskID, date.Format(time.DateOnly))
}
