package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type textStream struct {
	ctx      context.Context
	adapter  *Adapter
	deps     Deps
	messages []openai.ChatCompletionMessage
	span     trace.Span

	round   int
	current *openai.ChatCompletionStream
	content strings.Builder
	calls   map[int]*openai.ToolCall
	done    bool
	err     error
}

func (s *textStream) open() error {
	req := s.adapter.completionRequest(s.messages, s.round, true)
	stream, err := s.adapter.client.CreateChatCompletionStream(s.ctx, req)
	if err != nil {
		return fmt.Errorf("llm stream failed: %w", err)
	}
	s.current = stream
	s.content.Reset()
	s.calls = make(map[int]*openai.ToolCall)
	return nil
}

func (s *textStream) Recv() (string, error) {
	for {
		if s.done {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		if s.current == nil {
			if err := s.open(); err != nil {
				return "", s.fail(err)
			}
		}

		resp, err := s.current.Recv()
		if errors.Is(err, io.EOF) {
			s.current.Close()
			s.current = nil
			if len(s.calls) == 0 || s.round >= s.adapter.cfg.MaxToolRounds {
				s.finish()
				return "", io.EOF
			}
			s.resolveTools()
			continue
		}
		if err != nil {
			return "", s.fail(fmt.Errorf("llm stream recv failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		for i, call := range delta.ToolCalls {
			s.mergeCall(i, call)
		}
		if delta.Content != "" {
			s.content.WriteString(delta.Content)
			return delta.Content, nil
		}
	}
}

func (s *textStream) Close() error {
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
	if !s.done {
		s.done = true
		s.span.End()
	}
	return nil
}

// mergeCall folds a streamed tool call fragment into the call it belongs to.
// Fragments without an index are keyed by their position in the delta.
func (s *textStream) mergeCall(pos int, frag openai.ToolCall) {
	idx := pos
	if frag.Index != nil {
		idx = *frag.Index
	}
	call, ok := s.calls[idx]
	if !ok {
		call = &openai.ToolCall{Type: openai.ToolTypeFunction}
		s.calls[idx] = call
	}
	if frag.ID != "" {
		call.ID = frag.ID
	}
	if frag.Function.Name != "" {
		call.Function.Name = frag.Function.Name
	}
	call.Function.Arguments += frag.Function.Arguments
}

func (s *textStream) resolveTools() {
	keys := make([]int, 0, len(s.calls))
	for k := range s.calls {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	calls := make([]openai.ToolCall, 0, len(keys))
	for _, k := range keys {
		call := *s.calls[k]
		call.Index = nil
		calls = append(calls, call)
	}

	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   s.content.String(),
		ToolCalls: calls,
	})
	s.messages = append(s.messages, s.adapter.runTools(s.ctx, s.deps, calls)...)
	s.round++
}

func (s *textStream) finish() {
	s.span.SetAttributes(attribute.Int("agent.tool_rounds", s.round))
	s.done = true
	s.span.End()
}

func (s *textStream) fail(err error) error {
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
	s.err = err
	if !s.done {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, "stream failed")
		s.done = true
		s.span.End()
	}
	return err
}

// Accumulator collects streamed deltas until the run either completes and is
// persisted or is discarded.
type Accumulator struct {
	b         strings.Builder
	discarded bool
}

func (a *Accumulator) Append(delta string) {
	if a.discarded {
		return
	}
	a.b.WriteString(delta)
}

func (a *Accumulator) Text() string {
	return a.b.String()
}

func (a *Accumulator) Discard() {
	a.discarded = true
	a.b.Reset()
}

func (a *Accumulator) Discarded() bool {
	return a.discarded
}
