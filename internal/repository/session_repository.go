package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"agentchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.ChatSession) error {
	if session.Status == "" {
		session.Status = model.StatusActive
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	return r.first(ctx, r.active(ctx).Where("session_id = ?", sessionID))
}

func (r *SessionRepository) GetBySessionIDAndUserID(ctx context.Context, sessionID string, userID uint) (*model.ChatSession, error) {
	return r.first(ctx, r.active(ctx).Where("session_id = ? AND user_id = ?", sessionID, userID))
}

func (r *SessionRepository) GetShared(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	return r.first(ctx, r.active(ctx).Where("session_id = ? AND shared_to_public = ?", sessionID, true))
}

func (r *SessionRepository) ListByUserID(ctx context.Context, userID uint, offset, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.active(ctx).
		Where("user_id = ?", userID).
		Order("date_time DESC").Order("id DESC").
		Scopes(paginate(offset, limit)).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) CountByUserID(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.active(ctx).Model(&model.ChatSession{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count sessions failed: %w", err)
	}
	return count, nil
}

// SearchByTitle matches titles case-insensitively on every supported driver.
func (r *SessionRepository) SearchByTitle(ctx context.Context, userID uint, query string, limit int) ([]model.ChatSession, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var sessions []model.ChatSession
	err := r.active(ctx).
		Where("user_id = ? AND LOWER(title) LIKE ?", userID, pattern).
		Order("date_time DESC").Order("id DESC").
		Scopes(paginate(0, limit)).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("search sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateTitle(ctx context.Context, sessionID, title string) error {
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		Update("title", title).Error
	if err != nil {
		return fmt.Errorf("update session title failed: %w", err)
	}
	return nil
}

// SetTitleIfEmpty writes the title only when none is stored yet and reports
// whether this call won.
func (r *SessionRepository) SetTitleIfEmpty(ctx context.Context, sessionID, title string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("session_id = ? AND (title IS NULL OR title = '')", sessionID).
		Update("title", title)
	if result.Error != nil {
		return false, fmt.Errorf("set session title failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *SessionRepository) MarkShared(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		Update("shared_to_public", true).Error
	if err != nil {
		return fmt.Errorf("share session failed: %w", err)
	}
	return nil
}

// Touch advances the last-activity timestamp. Older timestamps are ignored so
// out-of-order activity events cannot move it backwards.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("session_id = ? AND date_time < ?", sessionID, at).
		Update("date_time", at).Error
	if err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) SoftDelete(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		Update("status", model.StatusDeleted).Error
	if err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Scopes(Active("chat_sessions"))
}

func (r *SessionRepository) first(_ context.Context, q *gorm.DB) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := q.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}
