package model

import "time"

// User owns tasks, boards and calendar credentials.
type User struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
