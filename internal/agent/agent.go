package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"agentchat/internal/model"
)

const DefaultTitle = "New chat"

var errNoChoices = errors.New("llm returned no choices")

type Config struct {
	Model         string
	TitleModel    string
	MaxToolRounds int
}

// Deps are the per-call collaborators handed to tools.
type Deps struct {
	KnowledgeBaseURL    string
	KnowledgeBaseAPIKey string
	Collection          string
}

type Request struct {
	UserName string
	Message  string
	History  []*model.ChatMessage
	Deps     Deps
}

// DeltaStream yields text deltas until io.EOF. It can be consumed once.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

type Adapter struct {
	client *openai.Client
	tools  *Toolbox
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewOpenAIClient builds a client for any OpenAI-compatible endpoint on top
// of the shared HTTP client.
func NewOpenAIClient(baseURL, apiKey string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

func NewAdapter(client *openai.Client, tools *Toolbox, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.MaxToolRounds < 0 {
		cfg.MaxToolRounds = 0
	}
	if cfg.TitleModel == "" {
		cfg.TitleModel = cfg.Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client: client,
		tools:  tools,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("agentchat/agent"),
		now:    time.Now,
	}
}

// Run executes the agent to completion, resolving tool calls for up to
// MaxToolRounds rounds before forcing a plain answer.
func (a *Adapter) Run(ctx context.Context, req Request) (string, error) {
	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("llm.model", a.cfg.Model),
		attribute.Int("agent.history", len(req.History)),
	))
	defer span.End()

	messages := a.buildMessages(req)
	for round := 0; ; round++ {
		resp, err := a.client.CreateChatCompletion(ctx, a.completionRequest(messages, round, false))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "completion failed")
			return "", fmt.Errorf("llm completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			span.SetStatus(codes.Error, errNoChoices.Error())
			return "", errNoChoices
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || round >= a.cfg.MaxToolRounds {
			span.SetAttributes(attribute.Int("agent.tool_rounds", round))
			return msg.Content, nil
		}

		messages = append(messages, msg)
		messages = append(messages, a.runTools(ctx, req.Deps, msg.ToolCalls)...)
	}
}

// Stream opens a streaming run. Tool calls announced by the model are
// executed transparently between rounds; only text reaches the caller.
func (a *Adapter) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	ctx, span := a.tracer.Start(ctx, "agent.stream", trace.WithAttributes(
		attribute.String("llm.model", a.cfg.Model),
		attribute.Int("agent.history", len(req.History)),
	))

	s := &textStream{
		ctx:      ctx,
		adapter:  a,
		deps:     req.Deps,
		messages: a.buildMessages(req),
		span:     span,
	}
	if err := s.open(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream open failed")
		span.End()
		return nil, err
	}
	return s, nil
}

// GenerateTitle asks the model for a short plain title of the user's query.
func (a *Adapter) GenerateTitle(ctx context.Context, userMessage string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "agent.title", trace.WithAttributes(
		attribute.String("llm.model", a.cfg.TitleModel),
	))
	defer span.End()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.TitleModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titlePrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "title completion failed")
		return "", fmt.Errorf("llm title completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return CleanTitle(resp.Choices[0].Message.Content), nil
}

// CleanTitle collapses newlines and falls back to the default title.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
	if title == "" {
		return DefaultTitle
	}
	return title
}

func (a *Adapter) completionRequest(messages []openai.ChatCompletionMessage, round int, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	if a.tools != nil && round < a.cfg.MaxToolRounds {
		req.Tools = a.tools.Definitions()
	}
	return req
}

func (a *Adapter) runTools(ctx context.Context, deps Deps, calls []openai.ToolCall) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(calls))
	for _, call := range calls {
		result := toolFallback
		if a.tools != nil {
			result = a.tools.Execute(ctx, deps, call)
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result,
			Name:       call.Function.Name,
			ToolCallID: call.ID,
		})
	}
	return out
}

// toolNames lists the tools the model may call on this adapter.
func (a *Adapter) toolNames() []string {
	if a.tools == nil || a.cfg.MaxToolRounds == 0 {
		return nil
	}
	return a.tools.Names()
}

func (a *Adapter) buildMessages(req Request) []openai.ChatCompletionMessage {
	history := toMessages(req.History, a.logger)
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(req.UserName, a.now(), a.toolNames()),
	})
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
	return messages
}
