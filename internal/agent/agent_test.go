package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agentchat/internal/model"
)

type reply struct {
	content   string
	chunks    []string
	toolCalls []openai.ToolCall
	status    int
}

type fakeLLM struct {
	t        *testing.T
	mu       sync.Mutex
	replies  []reply
	requests []openai.ChatCompletionRequest
}

func newFakeLLM(t *testing.T, replies ...reply) (*fakeLLM, *httptest.Server) {
	f := &fakeLLM{t: t, replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeLLM) serve(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	f.requests = append(f.requests, req)
	var rep reply
	if len(f.replies) > 0 {
		rep = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if rep.status != 0 {
		w.WriteHeader(rep.status)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		return
	}

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "cmpl",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					Content:   rep.content,
					ToolCalls: rep.toolCalls,
				},
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	write := func(delta openai.ChatCompletionStreamChoiceDelta) {
		payload, err := json.Marshal(openai.ChatCompletionStreamResponse{
			ID:      "chunk",
			Object:  "chat.completion.chunk",
			Model:   req.Model,
			Choices: []openai.ChatCompletionStreamChoice{{Delta: delta}},
		})
		require.NoError(f.t, err)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	for _, c := range rep.chunks {
		write(openai.ChatCompletionStreamChoiceDelta{Content: c})
	}
	for i, call := range rep.toolCalls {
		idx := i
		call.Index = &idx
		write(openai.ChatCompletionStreamChoiceDelta{ToolCalls: []openai.ToolCall{call}})
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}

func (f *fakeLLM) request(i int) openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(f.t, len(f.requests), i)
	return f.requests[i]
}

func newTestAdapter(srv *httptest.Server, rounds int) *Adapter {
	return newAdapterWithTools(srv, rounds, ToolboxOptions{Timeout: time.Second, Knowledge: true})
}

func newAdapterWithTools(srv *httptest.Server, rounds int, opts ToolboxOptions) *Adapter {
	client := NewOpenAIClient(srv.URL, "test-key", srv.Client())
	a := NewAdapter(client, NewToolbox(http.DefaultClient, opts, zap.NewNop()), Config{
		Model:         "test-model",
		TitleModel:    "title-model",
		MaxToolRounds: rounds,
	}, zap.NewNop())
	a.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return a
}

func knowledgeCall(query string) openai.ToolCall {
	return toolCall(KnowledgeToolName, query)
}

func toolCall(name, query string) openai.ToolCall {
	return openai.ToolCall{
		ID:   "call-1",
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: fmt.Sprintf(`{"query":%q}`, query),
		},
	}
}

func strPtr(s string) *string { return &s }

func TestRunBuildsPromptAndHistory(t *testing.T) {
	llm, srv := newFakeLLM(t, reply{content: "Hello Ada"})
	a := newTestAdapter(srv, 3)

	out, err := a.Run(context.Background(), Request{
		UserName: "Ada",
		Message:  "what next?",
		History: []*model.ChatMessage{
			{HumanMessage: "hi", AIMessage: strPtr("hello")},
			nil,
			{HumanMessage: "pending"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", out)

	req := llm.request(0)
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 5)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "User's name is Ada")
	assert.Contains(t, req.Messages[0].Content, "2025-03-14 & today is Friday")
	assert.Contains(t, req.Messages[0].Content, "Use the custom_knowledge_tool tool")
	assert.NotContains(t, req.Messages[0].Content, WebSearchToolName)
	assert.Equal(t, []string{"user", "assistant", "user", "user"}, []string{
		req.Messages[1].Role, req.Messages[2].Role, req.Messages[3].Role, req.Messages[4].Role,
	})
	assert.Equal(t, "what next?", req.Messages[4].Content)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, KnowledgeToolName, req.Tools[0].Function.Name)
}

func TestRunResolvesKnowledgeTool(t *testing.T) {
	kb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qdrant/search", r.URL.Path)
		assert.Equal(t, "kb-key", r.Header.Get("Authorization"))

		var body knowledgeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refund policy", body.Query)
		assert.Equal(t, 5, body.Limit)
		assert.Equal(t, "docs", body.CollectionName)

		_, _ = w.Write([]byte(`{"data":[{"payload":{"content":"30 days"}},{"payload":{"content":"receipt needed"}}]}`))
	}))
	defer kb.Close()

	llm, srv := newFakeLLM(t,
		reply{toolCalls: []openai.ToolCall{knowledgeCall("refund policy")}},
		reply{content: "Refunds within 30 days."},
	)
	a := newTestAdapter(srv, 3)

	out, err := a.Run(context.Background(), Request{
		UserName: "Ada",
		Message:  "refunds?",
		Deps:     Deps{KnowledgeBaseURL: kb.URL, KnowledgeBaseAPIKey: "kb-key", Collection: "docs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Refunds within 30 days.", out)

	second := llm.request(1)
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Equal(t, "Content: 30 days\n\n\nContent: receipt needed\n", last.Content)
}

const duckDuckGoPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://ads.example.com">Sponsored</a>
  <a class="result__snippet">Buy now</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> docs</a></h2>
  <a class="result__snippet" href="#">Documentation for the <b>Go</b> language.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://pkg.go.dev/">Go Packages</a></h2>
  <a class="result__snippet">Search packages.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://go.dev/blog/">Go Blog</a></h2>
  <a class="result__snippet">News.</a>
</div>
</body></html>`

func TestRunResolvesWebSearch(t *testing.T) {
	ddg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "golang docs", r.PostForm.Get("q"))
		assert.NotEmpty(t, r.UserAgent())
		_, _ = w.Write([]byte(duckDuckGoPage))
	}))
	defer ddg.Close()

	llm, srv := newFakeLLM(t,
		reply{toolCalls: []openai.ToolCall{toolCall(WebSearchToolName, "golang docs")}},
		reply{content: "See go.dev."},
	)
	a := newAdapterWithTools(srv, 3, ToolboxOptions{
		Timeout:          time.Second,
		Knowledge:        true,
		WebSearchURL:     ddg.URL,
		WebSearchResults: 2,
	})

	out, err := a.Run(context.Background(), Request{UserName: "Ada", Message: "go docs?"})
	require.NoError(t, err)
	assert.Equal(t, "See go.dev.", out)

	first := llm.request(0)
	require.Len(t, first.Tools, 2)
	assert.Equal(t, WebSearchToolName, first.Tools[0].Function.Name)
	assert.Equal(t, KnowledgeToolName, first.Tools[1].Function.Name)
	assert.Contains(t, first.Messages[0].Content, "Use the web_search tool to search the web")

	second := llm.request(1)
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)

	var results []WebResult
	require.NoError(t, json.Unmarshal([]byte(last.Content), &results))
	assert.Equal(t, []WebResult{
		{Title: "The Go docs", Href: "https://go.dev/doc/", Body: "Documentation for the Go language."},
		{Title: "Go Packages", Href: "https://pkg.go.dev/", Body: "Search packages."},
	}, results)
}

func TestSearchWebFallbacks(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	ddg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`<html><body><div class="no-results">No results.</div></body></html>`))
	}))
	defer ddg.Close()

	tools := NewToolbox(http.DefaultClient, ToolboxOptions{Timeout: time.Second, WebSearchURL: ddg.URL}, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, noWebResults, tools.Execute(ctx, Deps{}, toolCall(WebSearchToolName, "nothing")))

	status.Store(http.StatusServiceUnavailable)
	assert.Equal(t, toolFallback, tools.Execute(ctx, Deps{}, toolCall(WebSearchToolName, "nothing")))
	assert.Equal(t, toolFallback, tools.Execute(ctx, Deps{}, toolCall(WebSearchToolName, " ")))
}

func TestToolboxWithoutKnowledgeService(t *testing.T) {
	tools := NewToolbox(http.DefaultClient, ToolboxOptions{WebSearchURL: "https://html.duckduckgo.com/html/"}, zap.NewNop())

	assert.Equal(t, []string{WebSearchToolName}, tools.Names())
	defs := tools.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, WebSearchToolName, defs[0].Function.Name)

	assert.Equal(t, toolFallback, tools.Execute(context.Background(), Deps{KnowledgeBaseURL: "http://unused"}, knowledgeCall("x")))

	empty := NewToolbox(nil, ToolboxOptions{}, nil)
	assert.Empty(t, empty.Names())
	assert.Empty(t, empty.Definitions())
}

func TestRunToolFailureDoesNotFailTurn(t *testing.T) {
	kb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer kb.Close()

	llm, srv := newFakeLLM(t,
		reply{toolCalls: []openai.ToolCall{knowledgeCall("x")}},
		reply{content: "sorry"},
	)
	a := newTestAdapter(srv, 3)

	out, err := a.Run(context.Background(), Request{UserName: "Ada", Message: "x", Deps: Deps{KnowledgeBaseURL: kb.URL}})
	require.NoError(t, err)
	assert.Equal(t, "sorry", out)

	second := llm.request(1)
	assert.Equal(t, toolFallback, second.Messages[len(second.Messages)-1].Content)
}

func TestRunStopsOfferingToolsAfterLastRound(t *testing.T) {
	llm, srv := newFakeLLM(t,
		reply{toolCalls: []openai.ToolCall{knowledgeCall("x")}},
		reply{content: "final"},
	)
	a := newTestAdapter(srv, 1)

	out, err := a.Run(context.Background(), Request{UserName: "Ada", Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "final", out)
	assert.NotEmpty(t, llm.request(0).Tools)
	assert.Empty(t, llm.request(1).Tools)
}

func TestRunUpstreamError(t *testing.T) {
	_, srv := newFakeLLM(t, reply{status: http.StatusInternalServerError})
	a := newTestAdapter(srv, 0)

	_, err := a.Run(context.Background(), Request{UserName: "Ada", Message: "x"})
	assert.Error(t, err)
}

func TestStreamYieldsDeltas(t *testing.T) {
	_, srv := newFakeLLM(t, reply{chunks: []string{"Hel", "lo", " Ada"}})
	a := newTestAdapter(srv, 3)

	stream, err := a.Stream(context.Background(), Request{UserName: "Ada", Message: "hi"})
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, delta)
	}
	assert.Equal(t, []string{"Hel", "lo", " Ada"}, got)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamResolvesToolsBetweenRounds(t *testing.T) {
	kb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"payload":{"content":"fact"}}]}`))
	}))
	defer kb.Close()

	llm, srv := newFakeLLM(t,
		reply{toolCalls: []openai.ToolCall{knowledgeCall("q")}},
		reply{chunks: []string{"Based on ", "fact"}},
	)
	a := newTestAdapter(srv, 3)

	stream, err := a.Stream(context.Background(), Request{UserName: "Ada", Message: "q", Deps: Deps{KnowledgeBaseURL: kb.URL}})
	require.NoError(t, err)
	defer stream.Close()

	var b strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b.WriteString(delta)
	}
	assert.Equal(t, "Based on fact", b.String())

	second := llm.request(1)
	require.GreaterOrEqual(t, len(second.Messages), 2)
	assistant := second.Messages[len(second.Messages)-2]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, KnowledgeToolName, assistant.ToolCalls[0].Function.Name)
	assert.Equal(t, "Content: fact\n", second.Messages[len(second.Messages)-1].Content)
}

func TestGenerateTitle(t *testing.T) {
	llm, srv := newFakeLLM(t, reply{content: "  Trip\nplanning \n"}, reply{content: "  "})
	a := newTestAdapter(srv, 3)

	title, err := a.GenerateTitle(context.Background(), "plan my trip")
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", title)
	assert.Equal(t, "title-model", llm.request(0).Model)
	assert.Empty(t, llm.request(0).Tools)

	title, err = a.GenerateTitle(context.Background(), "?")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, title)
}

func TestAccumulator(t *testing.T) {
	var acc Accumulator
	acc.Append("a")
	acc.Append("b")
	assert.Equal(t, "ab", acc.Text())
	assert.False(t, acc.Discarded())

	acc.Discard()
	acc.Append("c")
	assert.True(t, acc.Discarded())
	assert.Empty(t, acc.Text())
}
