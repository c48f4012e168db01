package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/pkg/models"
)

// MaxTitleLength bounds conversation titles, in characters.
const MaxTitleLength = 80

const titlePrompt = `You will generate a short title based on the first message a user begins a conversation with.
Ensure it is not more than 80 characters long.
The title should be a summary of the user's message.
Do not use quotes or colons.`

const titleTimeout = 10 * time.Second

// deriveTitle builds a title from the message text.
func deriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	title = strings.Trim(title, `"':`)
	if title == "" {
		return "New chat"
	}
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	cut := string(runes[:MaxTitleLength-1])
	if i := strings.LastIndex(cut, " "); i > MaxTitleLength/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

// generateTitle asks provider for a title and falls back to deriveTitle.
func generateTitle(ctx context.Context, provider agent.LLMProvider, model string, msg *models.Message) string {
	fallback := deriveTitle(msg.Text())
	if provider == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	chunks, err := provider.Complete(ctx, &agent.CompletionRequest{
		Model:     model,
		System:    titlePrompt,
		Messages:  []agent.CompletionMessage{{Role: string(models.RoleUser), Content: msg.Text()}},
		MaxTokens: 64,
	})
	if err != nil {
		return fallback
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			for range chunks {
			}
			return fallback
		}
		b.WriteString(chunk.Text)
	}
	if title := strings.TrimSpace(b.String()); title != "" {
		return deriveTitle(title)
	}
	return fallback
}
