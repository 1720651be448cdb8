package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"agentchat/internal/agent"
	"agentchat/internal/model"
	"agentchat/internal/repository"
)

const (
	searchLimit  = 20
	maxPageLimit = 100
)

type SessionPage struct {
	Sessions     []model.ChatSession
	Page         int
	Limit        int
	TotalPages   int
	TotalRecords int64
}

// GenerateTitle returns the session title, asking the agent for one only when
// none is stored. Concurrent callers converge on the first stored title.
func (s *ChatService) GenerateTitle(ctx context.Context, user *model.User, sessionID, userMessage string) (string, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return "", ErrInvalidInput
	}
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return "", err
	}
	if session.HasTitle() {
		return *session.Title, nil
	}

	title, err := s.agent.GenerateTitle(ctx, userMessage)
	if err != nil {
		s.logger.Error("title generation failed", zap.String("session_id", session.SessionID), zap.Error(err))
		return agent.DefaultTitle, nil
	}
	title = agent.CleanTitle(title)

	won, err := s.repos.Sessions.SetTitleIfEmpty(ctx, session.SessionID, title)
	if err != nil {
		return "", err
	}
	if won {
		return title, nil
	}

	current, err := s.repos.Sessions.GetBySessionID(ctx, session.SessionID)
	if err != nil {
		return "", err
	}
	if current == nil || !current.HasTitle() {
		return title, nil
	}
	return *current.Title, nil
}

func (s *ChatService) EditTitle(ctx context.Context, user *model.User, sessionID, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Sessions.UpdateTitle(ctx, session.SessionID, title); err != nil {
		return nil, err
	}
	session.Title = &title
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID uint, page, limit int) (*SessionPage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	total, err := s.repos.Sessions.CountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repos.Sessions.ListByUserID(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return &SessionPage{
		Sessions:     sessions,
		Page:         page,
		Limit:        limit,
		TotalPages:   int((total + int64(limit) - 1) / int64(limit)),
		TotalRecords: total,
	}, nil
}

func (s *ChatService) SearchSessions(ctx context.Context, user *model.User, query string) ([]model.ChatSession, error) {
	query = strings.TrimSpace(query)
	if user == nil || query == "" {
		return nil, ErrInvalidInput
	}
	return s.repos.Sessions.SearchByTitle(ctx, user.ID, query, searchLimit)
}

func (s *ChatService) GetMessages(ctx context.Context, user *model.User, sessionID string) ([]*model.ChatMessage, error) {
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repos.Messages.ListBySession(ctx, session.SessionID, repository.ListOptions{})
}

// GetSessionMessages reads any active session without an owner check. It
// backs the service routes guarded by API keys.
func (s *ChatService) GetSessionMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	session, err := s.repos.Sessions.GetBySessionID(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.repos.Messages.ListBySession(ctx, session.SessionID, repository.ListOptions{})
}

func (s *ChatService) DeleteSession(ctx context.Context, user *model.User, sessionID string) error {
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return err
	}
	s.invalidate(ctx, session.SessionID)

	return s.uow.Do(ctx, func(tx *repository.Repositories) error {
		if err := tx.Sessions.SoftDelete(ctx, session.SessionID); err != nil {
			return err
		}
		return tx.Messages.SoftDeleteBySession(ctx, session.SessionID)
	})
}

// SubmitFeedback stores both flags as given; they are independent.
func (s *ChatService) SubmitFeedback(ctx context.Context, user *model.User, messageID uint, positive, negative bool) error {
	if user == nil || messageID == 0 {
		return ErrInvalidInput
	}
	msg, err := s.repos.Messages.GetOwned(ctx, messageID, user.ID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if err := s.repos.Messages.UpdateFeedback(ctx, msg.ID, positive, negative); err != nil {
		return err
	}
	s.invalidate(ctx, msg.SessionID)
	return nil
}

func (s *ChatService) ShareSession(ctx context.Context, user *model.User, sessionID string) error {
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return err
	}
	if session.SharedToPublic {
		return nil
	}
	return s.repos.Sessions.MarkShared(ctx, session.SessionID)
}

func (s *ChatService) GetSharedMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	session, err := s.repos.Sessions.GetShared(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.repos.Messages.ListBySession(ctx, session.SessionID, repository.ListOptions{})
}
