package model

import "time"

// Board groups tasks by area (work, health, study, etc.).
type Board struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index"`
	Name      string `gorm:"index:idx_user_board_name,unique"`
	Color     string // hex, e.g. #d50000
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:BoardID"`
}
