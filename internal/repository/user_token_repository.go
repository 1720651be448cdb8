package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"agentchat/internal/model"
)

type UserTokenRepository struct {
	db *gorm.DB
}

func NewUserTokenRepository(db *gorm.DB) *UserTokenRepository {
	return &UserTokenRepository{db: db}
}

func (r *UserTokenRepository) Create(ctx context.Context, token *model.UserToken) error {
	if token.Status == "" {
		token.Status = model.StatusActive
	}
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("create user token failed: %w", err)
	}
	return nil
}

// GetLive returns the active, non-blacklisted token with the given JTI. A
// non-zero userID additionally pins the owner.
func (r *UserTokenRepository) GetLive(ctx context.Context, jti string, userID uint) (*model.UserToken, error) {
	q := r.db.WithContext(ctx).Scopes(Active("user_tokens")).
		Where("jti = ? AND is_blacklisted = ?", jti, false)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	var token model.UserToken
	if err := q.First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query live user token failed: %w", err)
	}
	return &token, nil
}

func (r *UserTokenRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UserToken{}).
		Where("jti = ? AND is_blacklisted = ?", jti, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check blacklisted token failed: %w", err)
	}
	return count > 0, nil
}

// Blacklist flips the flag on a live token. It reports false when no live
// token matched, i.e. the JTI is unknown or already blacklisted.
func (r *UserTokenRepository) Blacklist(ctx context.Context, jti string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.UserToken{}).
		Where("jti = ? AND is_blacklisted = ?", jti, false).
		Update("is_blacklisted", true)
	if result.Error != nil {
		return false, fmt.Errorf("blacklist user token failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
