package agent

import (
	"fmt"
	"strings"
	"time"
)

const titlePrompt = `You are a helpful AI Assistant. Your purpose is to extract a short title from the user's query.
If the query is not relevant for a title, respond with "New chat". You do not answer any query, only respond with the plain title.`

var toolHints = map[string]string{
	WebSearchToolName: "Use the " + WebSearchToolName + " tool to search the web and get relevant information.",
	KnowledgeToolName: "Use the " + KnowledgeToolName + " tool to look up relevant information from the knowledge base when the question needs it.",
}

func systemPrompt(userName string, now time.Time, tools []string) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI Assistant.\n\n## Important Instructions:\n")
	fmt.Fprintf(&b, "- ALWAYS address the user by name. User's name is %s.\n", userName)
	for _, name := range tools {
		if hint, ok := toolHints[name]; ok {
			fmt.Fprintf(&b, "- %s\n", hint)
		}
	}
	fmt.Fprintf(&b, "- Today's date is: %s & today is %s.\n", now.Format("2006-01-02"), now.Format("Monday"))
	return b.String()
}
