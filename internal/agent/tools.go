package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

const (
	KnowledgeToolName = "custom_knowledge_tool"
	WebSearchToolName = "web_search"

	toolFallback   = "Error fetching answers. Please try again later."
	noKnowledge    = "No relevant content found in the knowledge base."
	knowledgeLimit = 5
)

type ToolboxOptions struct {
	Timeout time.Duration
	// Knowledge offers custom_knowledge_tool. Leave it off when no knowledge
	// service is configured.
	Knowledge bool
	// WebSearchURL is the DuckDuckGo HTML endpoint; empty disables web_search.
	WebSearchURL     string
	WebSearchResults int
}

// Doer is the part of *http.Client the toolbox needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Toolbox struct {
	client Doer
	opts   ToolboxOptions
	logger *zap.Logger
}

func NewToolbox(client Doer, opts ToolboxOptions, logger *zap.Logger) *Toolbox {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.WebSearchResults <= 0 {
		opts.WebSearchResults = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toolbox{client: client, opts: opts, logger: logger}
}

// Names lists the enabled tools in the order they are offered.
func (t *Toolbox) Names() []string {
	var names []string
	if t.opts.WebSearchURL != "" {
		names = append(names, WebSearchToolName)
	}
	if t.opts.Knowledge {
		names = append(names, KnowledgeToolName)
	}
	return names
}

func (t *Toolbox) Definitions() []openai.Tool {
	var tools []openai.Tool
	for _, name := range t.Names() {
		switch name {
		case WebSearchToolName:
			tools = append(tools, queryTool(name,
				"Search the web with DuckDuckGo and return the top results.",
				"The search query."))
		case KnowledgeToolName:
			tools = append(tools, queryTool(name,
				"Fetch answers from the custom knowledge base.",
				"The query string to search for in the custom knowledge base."))
		}
	}
	return tools
}

func queryTool(name, description, queryDescription string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {
						Type:        jsonschema.String,
						Description: queryDescription,
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

func (t *Toolbox) enabled(name string) bool {
	for _, n := range t.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Execute runs one tool call. Failures are reported to the model as text and
// never abort the turn.
func (t *Toolbox) Execute(ctx context.Context, deps Deps, call openai.ToolCall) string {
	name := call.Function.Name
	if !t.enabled(name) {
		t.logger.Warn("unknown tool requested", zap.String("tool", name))
		return toolFallback
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		t.logger.Warn("invalid tool arguments", zap.String("tool", name), zap.String("arguments", call.Function.Arguments))
		return toolFallback
	}
	if name == WebSearchToolName {
		return t.SearchWeb(ctx, args.Query)
	}
	return t.SearchKnowledge(ctx, deps, args.Query)
}

type knowledgeRequest struct {
	Query          string `json:"query"`
	Limit          int    `json:"limit"`
	CollectionName string `json:"collection_name"`
}

type knowledgeResponse struct {
	Data []struct {
		Payload struct {
			Content string `json:"content"`
		} `json:"payload"`
	} `json:"data"`
}

func (t *Toolbox) SearchKnowledge(ctx context.Context, deps Deps, query string) string {
	result, err := t.searchKnowledge(ctx, deps, query)
	if err != nil {
		t.logger.Error("knowledge base search failed", zap.String("query", query), zap.Error(err))
		return toolFallback
	}
	t.logger.Info("knowledge base search", zap.String("query", query), zap.Int("chunks", len(result.Data)))

	if len(result.Data) == 0 {
		return noKnowledge
	}
	chunks := make([]string, 0, len(result.Data))
	for _, item := range result.Data {
		chunks = append(chunks, fmt.Sprintf("Content: %s\n", item.Payload.Content))
	}
	return strings.Join(chunks, "\n\n")
}

func (t *Toolbox) searchKnowledge(ctx context.Context, deps Deps, query string) (*knowledgeResponse, error) {
	if deps.KnowledgeBaseURL == "" {
		return nil, fmt.Errorf("knowledge base url is not configured")
	}

	body, err := json.Marshal(knowledgeRequest{
		Query:          query,
		Limit:          knowledgeLimit,
		CollectionName: deps.Collection,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal knowledge request failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	url := strings.TrimRight(deps.KnowledgeBaseURL, "/") + "/api/v1/qdrant/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build knowledge request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", deps.KnowledgeBaseAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("knowledge response status %d", resp.StatusCode)
	}

	var parsed knowledgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse knowledge response failed: %w", err)
	}
	return &parsed, nil
}
