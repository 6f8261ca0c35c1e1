package chain

import (
	"strconv"
	"strings"
)

// defaultSystemPrompt is used when the user has not configured one.
const defaultSystemPrompt = "You are NotePilot, an assistant for the user's personal note vault. " +
	"Answer from the provided notes when sources are given and cite them as [n]."

// systemPromptOr returns the configured prompt or the default.
func systemPromptOr(configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return defaultSystemPrompt
}

// buildQAPrompt folds retrieved note chunks into the user message so the
// model can ground its answer and cite by index.
func buildQAPrompt(query string, sources []SourceChunk) string {
	if len(sources) == 0 {
		return query
	}
	b := strings.Builder{}
	b.WriteString("User query: ")
	b.WriteString(query)
	b.WriteString("\nNotes:\n")
	for i, s := range sources {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString(": ")
		}
		b.WriteString(s.Snippet)
		b.WriteString("\n")
	}
	return b.String()
}
