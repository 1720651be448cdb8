package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"agentchat/internal/model"
)

type APIKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *model.ApiKey) error {
	if key.Status == "" {
		key.Status = model.StatusActive
	}
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("create api key failed: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) GetByKey(ctx context.Context, key string) (*model.ApiKey, error) {
	var apiKey model.ApiKey
	err := r.db.WithContext(ctx).Scopes(Active("api_keys")).Where(&model.ApiKey{Key: key}).First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query api key failed: %w", err)
	}
	return &apiKey, nil
}
