package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"agentchat/internal/agent"
	"agentchat/internal/model"
)

// ChunkFunc receives every text delta as it arrives. Returning an error stops
// the stream and nothing is persisted.
type ChunkFunc func(delta string) error

// StreamChat is the streaming form of Chat. The exchange is stored only after
// the upstream stream completes cleanly.
func (s *ChatService) StreamChat(ctx context.Context, in ChatInput, onChunk ChunkFunc) (*model.ChatMessage, error) {
	query := strings.TrimSpace(in.Query)
	if in.User == nil || query == "" || onChunk == nil {
		return nil, ErrInvalidInput
	}
	ctx, span := s.tracer.Start(ctx, "chat.stream")
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
	reply, err := s.consumeStream(ctx, s.agentRequest(in.User, query, history), onChunk)
	if err != nil {
		return nil, s.spanError(span, err)
	}

	commitCtx := context.WithoutCancel(ctx)
	msg := s.newMessage(session.SessionID, query, reply, time.Since(start))
	if err := s.saveExchange(commitCtx, session, isNew, msg); err != nil {
		return nil, s.spanError(span, err)
	}
	return msg, nil
}

// StreamResubmit is the streaming form of Resubmit. The session lock is held
// for the whole stream.
func (s *ChatService) StreamResubmit(ctx context.Context, in ResubmitInput, onChunk ChunkFunc) (*model.ChatMessage, error) {
	query := strings.TrimSpace(in.Query)
	if in.User == nil || query == "" || in.MessageID == 0 || onChunk == nil {
		return nil, ErrInvalidInput
	}
	ctx, span := s.tracer.Start(ctx, "chat.stream_resubmit", trace.WithAttributes(
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
	reply, err := s.consumeStream(ctx, s.agentRequest(in.User, query, history), onChunk)
	if err != nil {
		return nil, s.spanError(span, err)
	}

	if err := s.regenerate(context.WithoutCancel(ctx), target, query, reply, time.Since(start)); err != nil {
		return nil, s.spanError(span, err)
	}
	return target, nil
}

// consumeStream forwards deltas to onChunk while accumulating them. Any early
// stop discards what was collected.
func (s *ChatService) consumeStream(ctx context.Context, req agent.Request, onChunk ChunkFunc) (string, error) {
	stream, err := s.agent.Stream(ctx, req)
	if err != nil {
		s.logger.Error("agent stream failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer stream.Close()

	var acc agent.Accumulator
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return acc.Text(), nil
		}
		if err != nil {
			acc.Discard()
			if ctx.Err() != nil {
				return "", ErrStreamAborted
			}
			s.logger.Error("agent stream interrupted", zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		acc.Append(delta)
		if err := onChunk(delta); err != nil {
			acc.Discard()
			s.logger.Info("stream consumer stopped", zap.Error(err))
			return "", ErrStreamAborted
		}
		if ctx.Err() != nil {
			acc.Discard()
			return "", ErrStreamAborted
		}
	}
}
