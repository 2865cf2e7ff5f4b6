package model

import "time"

// OAuthToken holds the calendar provider credentials for one user. The row is
// mutated in place on refresh; it is recreated only after a full disconnect.
type OAuthToken struct {
	UserID       uint   `gorm:"primaryKey"`
	AccessToken  string `gorm:"size:4096"`
	RefreshToken string `gorm:"size:4096"`
	ExpiresAt    time.Time
	Scope        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
