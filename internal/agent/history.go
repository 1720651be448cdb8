package agent

import (
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"agentchat/internal/model"
)

// toMessages flattens stored exchanges into alternating user and assistant
// turns. An exchange without a reply contributes only its user turn.
func toMessages(history []*model.ChatMessage, logger *zap.Logger) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)*2)
	for i, item := range history {
		if item == nil || item.HumanMessage == "" {
			logger.Warn("skip invalid history entry", zap.Int("index", i))
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: item.HumanMessage,
		})
		if item.AIMessage != nil {
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: *item.AIMessage,
			})
		}
	}
	return out
}
