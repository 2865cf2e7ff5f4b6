package model

import "time"

// RecurringInstance records a completion override for one occurrence of a
// recurring template. Absence of a row means the occurrence is incomplete, so
// only deviations from the default are stored.
type RecurringInstance struct {
	ID           uint   `gorm:"primaryKey"`
	TaskID       uint   `gorm:"uniqueIndex:idx_task_instance_date"`
	InstanceDate string `gorm:"uniqueIndex:idx_task_instance_date;size:10"` // YYYY-MM-DD
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
