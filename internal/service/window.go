package service

import (
	"slices"

	"github.com/lexi-tutor/lexi-api/internal/llm"
	"github.com/lexi-tutor/lexi-api/internal/model"
)

// Soft caps applied around every model call. There is no tokenizer based
// budget; the window is a plain count of the most recent messages.
const (
	MaxInputChars     = 4096
	MaxOutputTokens   = 750
	ContextWindowSize = 20
)

// BuildWindow returns the most recent ContextWindowSize messages in
// chronological order, each reduced to its role and first content block.
func BuildWindow(messages []model.Message) []llm.ChatMessage {
	return buildWindow(messages, ContextWindowSize)
}

func buildWindow(messages []model.Message, size int) []llm.ChatMessage {
	sorted := slices.Clone(messages)
	slices.SortStableFunc(sorted, func(a, b model.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if size > 0 && len(sorted) > size {
		sorted = sorted[len(sorted)-size:]
	}

	window := make([]llm.ChatMessage, 0, len(sorted))
	for i := range sorted {
		window = append(window, llm.ChatMessage{
			Role:    string(sorted[i].Role),
			Content: sorted[i].Text(),
		})
	}
	return window
}
