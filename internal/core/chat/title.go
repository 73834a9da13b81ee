package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/typemate/typemate/internal/core/common"
	"github.com/typemate/typemate/internal/llm"
)

const (
	fallbackTitleRunes = 40
	maxTitleRunes      = 60
)

type sessionTitle struct {
	Title string `json:"title"`
}

// TitleGenerator names a new session after its first message.
type TitleGenerator struct {
	LLM    llm.LLMClient
	Prompt string // must contain one %s for the message
}

func NewTitleGenerator(llmClient llm.LLMClient, prompt string) *TitleGenerator {
	return &TitleGenerator{LLM: llmClient, Prompt: prompt}
}

func (g *TitleGenerator) Generate(ctx context.Context, firstMessage string) (string, error) {
	if g.Prompt == "" {
		return "", fmt.Errorf("no title prompt configured")
	}

	prompt := fmt.Sprintf(g.Prompt, common.Truncate(firstMessage, 500))
	response, err := g.LLM.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	title := response
	if result, err := common.ParseJSON[sessionTitle](response); err == nil {
		title = result.Title
	}
	// Models sometimes answer with a bare quoted title.
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if title == "" {
		return "", fmt.Errorf("empty title in response")
	}
	return common.Truncate(title, maxTitleRunes), nil
}

// FallbackTitle is the first 40 characters of the message on a single line.
func FallbackTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if title == "" {
		return "New chat"
	}
	return common.Truncate(title, fallbackTitleRunes)
}
