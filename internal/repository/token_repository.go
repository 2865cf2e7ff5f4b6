package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskplanner/internal/model"
)

// TokenRepository is the single authoritative store for calendar provider
// credentials. Every token mutation goes through here before it counts.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Get(ctx context.Context, userID uint) (*model.OAuthToken, error) {
	var token model.OAuthToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// Save upserts the token row for a user, preserving CreatedAt on update.
func (r *TokenRepository) Save(ctx context.Context, token *model.OAuthToken) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "scope", "updated_at",
		}),
	}).Create(token).Error; err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.OAuthToken{}).Error; err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
