package llm

import (
	"context"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatOptions struct {
	MaxTokens   int
	Temperature float32
}

type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type LLMClient interface {
	// Chat runs a chat completion over the given conversation. System
	// messages may appear anywhere; providers that take a single system
	// instruction concatenate them.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
	// Generate is a single-turn user prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
