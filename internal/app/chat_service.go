package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"agentchat/internal/agent"
	"agentchat/internal/cache"
	"agentchat/internal/model"
	"agentchat/internal/repository"
)

const (
	ApologyMessage    = "Sorry, I couldn't process your request right now. Please try again later."
	emptyReplyMessage = "The model returned an empty response."
)

type Agent interface {
	Run(ctx context.Context, req agent.Request) (string, error)
	Stream(ctx context.Context, req agent.Request) (agent.DeltaStream, error)
	GenerateTitle(ctx context.Context, userMessage string) (string, error)
}

// HistoryCache holds the newest context window per session. Fill must not
// repopulate a session that was invalidated since the caller's read.
type HistoryCache interface {
	Window(ctx context.Context, sessionID string) ([]*model.ChatMessage, bool, error)
	Fill(ctx context.Context, sessionID string, messages []*model.ChatMessage) error
	Invalidate(ctx context.Context, sessionID string) error
}

type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (func(), error)
}

type ActivityPublisher interface {
	Publish(ctx context.Context, activity model.SessionActivity) error
}

// ChatDeps wires the orchestrator. History and Activity are optional; Locker
// defaults to an in-process locker.
type ChatDeps struct {
	Repos      *repository.Repositories
	UnitOfWork *repository.UnitOfWork
	Agent      Agent
	History    HistoryCache
	Locker     SessionLocker
	Activity   ActivityPublisher
	Logger     *zap.Logger
}

type ChatOptions struct {
	MaxContext int
	PageSize   int
	AgentDeps  agent.Deps
}

type ChatService struct {
	repos    *repository.Repositories
	uow      *repository.UnitOfWork
	agent    Agent
	history  HistoryCache
	locker   SessionLocker
	activity ActivityPublisher
	logger   *zap.Logger
	tracer   trace.Tracer
	opts     ChatOptions
	now      func() time.Time
}

type ChatInput struct {
	User      *model.User
	SessionID string
	Query     string
}

type ResubmitInput struct {
	User      *model.User
	SessionID string
	MessageID uint
	Query     string
}

func NewChatService(deps ChatDeps, opts ChatOptions) *ChatService {
	if opts.MaxContext <= 0 {
		opts.MaxContext = 10
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if deps.Locker == nil {
		deps.Locker = cache.NewLocalSessionLocker(0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ChatService{
		repos:    deps.Repos,
		uow:      deps.UnitOfWork,
		agent:    deps.Agent,
		history:  deps.History,
		locker:   deps.Locker,
		activity: deps.Activity,
		logger:   deps.Logger,
		tracer:   otel.Tracer("agentchat/chat"),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Chat answers a query in blocking mode. An upstream failure is answered and
// stored as an apology rather than surfaced.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (*model.ChatMessage, error) {
	query := strings.TrimSpace(in.Query)
	if in.User == nil || query == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := s.tracer.Start(ctx, "chat.invoke")
	defer span.End()

	session, isNew, err := s.resolveSession(ctx, in.User, in.SessionID)
	if err != nil {
		return nil, s.spanError(span, err)
	}
	span.SetAttributes(attribute.String("chat.session_id", session.SessionID), attribute.Bool("chat.new_session", isNew))

	var history []*model.ChatMessage
	if !isNew {
		if history, err = s.fetchHistory(ctx, session.SessionID, nil); err != nil {
			return nil, s.spanError(span, err)
		}
	}

	start := time.Now()
	reply := s.runAgent(ctx, s.agentRequest(in.User, query, history))

	msg := s.newMessage(session.SessionID, query, reply, time.Since(start))
	if err := s.saveExchange(ctx, session, isNew, msg); err != nil {
		return nil, s.spanError(span, err)
	}
	return msg, nil
}

// Resubmit regenerates the reply of message N with a new query. The row is
// rewritten in place and every later message of the session is discarded.
func (s *ChatService) Resubmit(ctx context.Context, in ResubmitInput) (*model.ChatMessage, error) {
	query := strings.TrimSpace(in.Query)
	if in.User == nil || query == "" || in.MessageID == 0 {
		return nil, ErrInvalidInput
	}
	ctx, span := s.tracer.Start(ctx, "chat.resubmit", trace.WithAttributes(
		attribute.String("chat.session_id", in.SessionID),
		attribute.Int64("chat.message_id", int64(in.MessageID)),
	))
	defer span.End()

	target, history, release, err := s.prepareResubmit(ctx, in)
	if err != nil {
		return nil, s.spanError(span, err)
	}
	defer release()

	start := time.Now()
	reply := s.runAgent(ctx, s.agentRequest(in.User, query, history))

	if err := s.regenerate(ctx, target, query, reply, time.Since(start)); err != nil {
		return nil, s.spanError(span, err)
	}
	return target, nil
}

func (s *ChatService) prepareResubmit(ctx context.Context, in ResubmitInput) (*model.ChatMessage, []*model.ChatMessage, func(), error) {
	session, err := s.ownedSession(ctx, in.User, in.SessionID)
	if err != nil {
		return nil, nil, nil, err
	}

	release, err := s.locker.Lock(ctx, session.SessionID)
	if err != nil {
		if errors.Is(err, cache.ErrLockTimeout) {
			return nil, nil, nil, ErrSessionBusy
		}
		return nil, nil, nil, err
	}

	target, err := s.repos.Messages.GetInSession(ctx, session.SessionID, in.MessageID)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	if target == nil {
		release()
		return nil, nil, nil, ErrMessageNotFound
	}

	upTo := target.ID - 1
	history, err := s.fetchHistory(ctx, session.SessionID, &upTo)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	return target, history, release, nil
}

func (s *ChatService) runAgent(ctx context.Context, req agent.Request) string {
	reply, err := s.agent.Run(ctx, req)
	if err != nil {
		s.logger.Error("agent run failed", zap.Error(err))
		return ApologyMessage
	}
	return reply
}

func (s *ChatService) agentRequest(user *model.User, query string, history []*model.ChatMessage) agent.Request {
	return agent.Request{
		UserName: user.Name,
		Message:  query,
		History:  history,
		Deps:     s.opts.AgentDeps,
	}
}

func (s *ChatService) newMessage(sessionID, query, reply string, elapsed time.Duration) *model.ChatMessage {
	if strings.TrimSpace(reply) == "" {
		reply = emptyReplyMessage
	}
	duration := elapsed.Seconds()
	return &model.ChatMessage{
		SessionID:    sessionID,
		HumanMessage: query,
		AIMessage:    &reply,
		DateTime:     s.now(),
		Duration:     &duration,
	}
}

// saveExchange stores the exchange, creating the session in the same
// transaction when it is new.
func (s *ChatService) saveExchange(ctx context.Context, session *model.ChatSession, isNew bool, msg *model.ChatMessage) error {
	s.invalidate(ctx, session.SessionID)

	err := s.uow.Do(ctx, func(tx *repository.Repositories) error {
		if isNew {
			session.DateTime = msg.DateTime
			if err := tx.Sessions.Create(ctx, session); err != nil {
				return err
			}
		}
		return tx.Messages.Create(ctx, msg)
	})
	if err != nil {
		return err
	}

	s.recordActivity(ctx, msg, model.ActivityExchange)
	return nil
}

func (s *ChatService) regenerate(ctx context.Context, target *model.ChatMessage, query, reply string, elapsed time.Duration) error {
	next := s.newMessage(target.SessionID, query, reply, elapsed)
	s.invalidate(ctx, target.SessionID)

	err := s.uow.Do(ctx, func(tx *repository.Repositories) error {
		if err := tx.Messages.Regenerate(ctx, target.ID, next.HumanMessage, *next.AIMessage, *next.Duration, next.DateTime); err != nil {
			return err
		}
		_, err := tx.Messages.SoftDeleteAfter(ctx, target.SessionID, target.ID)
		return err
	})
	if err != nil {
		return err
	}

	target.HumanMessage = next.HumanMessage
	target.AIMessage = next.AIMessage
	target.Duration = next.Duration
	target.DateTime = next.DateTime
	target.PositiveFeedback = false
	target.NegativeFeedback = false

	s.recordActivity(ctx, target, model.ActivityResubmit)
	return nil
}

// recordActivity hands the last-activity update to the worker, touching the
// session directly when the event cannot be published.
func (s *ChatService) recordActivity(ctx context.Context, msg *model.ChatMessage, kind string) {
	activity := model.SessionActivity{
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Kind:      kind,
		At:        msg.DateTime,
	}
	if s.activity != nil {
		err := s.activity.Publish(ctx, activity)
		if err == nil {
			return
		}
		s.logger.Warn("publish session activity failed", zap.String("session_id", msg.SessionID), zap.Error(err))
	}
	if err := s.repos.Sessions.Touch(ctx, msg.SessionID, msg.DateTime); err != nil {
		s.logger.Error("touch session failed", zap.String("session_id", msg.SessionID), zap.Error(err))
	}
}

// resolveSession returns the caller's session, or an unsaved new one when no
// id is given.
func (s *ChatService) resolveSession(ctx context.Context, user *model.User, sessionID string) (*model.ChatSession, bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return &model.ChatSession{
			SessionID: uuid.NewString(),
			UserID:    user.ID,
			DateTime:  s.now(),
		}, true, nil
	}
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return nil, false, err
	}
	return session, false, nil
}

func (s *ChatService) ownedSession(ctx context.Context, user *model.User, sessionID string) (*model.ChatSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if user == nil || sessionID == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.repos.Sessions.GetBySessionIDAndUserID(ctx, sessionID, user.ID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// fetchHistory returns the context window for an agent call. Unbounded reads
// go through the cache while it is clean.
func (s *ChatService) fetchHistory(ctx context.Context, sessionID string, upTo *uint) ([]*model.ChatMessage, error) {
	useCache := s.history != nil && upTo == nil
	if useCache {
		cached, hit, err := s.history.Window(ctx, sessionID)
		if err != nil {
			s.logger.Warn("read history cache failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		if hit {
			return cached, nil
		}
	}

	messages, err := s.repos.Messages.ListBySession(ctx, sessionID, repository.ListOptions{
		UpToID: upTo,
		Limit:  s.opts.MaxContext,
	})
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := s.history.Fill(ctx, sessionID, messages); err != nil {
			s.logger.Warn("cache history failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return messages, nil
}

func (s *ChatService) invalidate(ctx context.Context, sessionID string) {
	if s.history == nil {
		return
	}
	if err := s.history.Invalidate(ctx, sessionID); err != nil {
		s.logger.Warn("invalidate history cache failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *ChatService) spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
