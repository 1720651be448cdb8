package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"agentchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListOptions bounds a history read. UpToID keeps messages whose id is at or
// below it; Limit keeps only the most recent N of those.
type ListOptions struct {
	UpToID *uint
	Limit  int
}

func (r *MessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	if message.Status == "" {
		message.Status = model.StatusActive
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetInSession(ctx context.Context, sessionID string, id uint) (*model.ChatMessage, error) {
	var message model.ChatMessage
	err := r.db.WithContext(ctx).Scopes(Active("chat_messages")).
		Where("chat_messages.id = ? AND chat_messages.session_id = ?", id, sessionID).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	return &message, nil
}

// GetOwned resolves a message through its session so that only the owner of
// an active session can reach it.
func (r *MessageRepository) GetOwned(ctx context.Context, id, userID uint) (*model.ChatMessage, error) {
	var message model.ChatMessage
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_sessions ON chat_sessions.session_id = chat_messages.session_id").
		Scopes(Active("chat_messages"), Active("chat_sessions")).
		Where("chat_messages.id = ? AND chat_sessions.user_id = ?", id, userID).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get owned message failed: %w", err)
	}
	return &message, nil
}

// ListBySession returns messages oldest first. With a limit it reads the
// newest rows and reverses them.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string, opts ListOptions) ([]*model.ChatMessage, error) {
	q := r.db.WithContext(ctx).Scopes(Active("chat_messages")).
		Where("chat_messages.session_id = ?", sessionID)
	if opts.UpToID != nil {
		q = q.Where("chat_messages.id <= ?", *opts.UpToID)
	}

	var messages []*model.ChatMessage
	if opts.Limit > 0 {
		err := q.Order("date_time DESC").Order("id DESC").Limit(opts.Limit).Find(&messages).Error
		if err != nil {
			return nil, fmt.Errorf("list messages failed: %w", err)
		}
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
		return messages, nil
	}

	if err := q.Order("date_time ASC").Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// Regenerate overwrites the reply of an existing exchange in place and clears
// its feedback.
func (r *MessageRepository) Regenerate(ctx context.Context, id uint, human, ai string, duration float64, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"human_message":     human,
			"ai_message":        ai,
			"duration":          duration,
			"date_time":         at,
			"positive_feedback": false,
			"negative_feedback": false,
		}).Error
	if err != nil {
		return fmt.Errorf("regenerate message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) SoftDeleteAfter(ctx context.Context, sessionID string, id uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("session_id = ? AND id > ? AND status <> ?", sessionID, id, model.StatusDeleted).
		Update("status", model.StatusDeleted)
	if result.Error != nil {
		return 0, fmt.Errorf("delete later messages failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *MessageRepository) SoftDeleteBySession(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Update("status", model.StatusDeleted).Error
	if err != nil {
		return fmt.Errorf("delete session messages failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) UpdateFeedback(ctx context.Context, id uint, positive, negative bool) error {
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"positive_feedback": positive,
			"negative_feedback": negative,
		}).Error
	if err != nil {
		return fmt.Errorf("update feedback failed: %w", err)
	}
	return nil
}
