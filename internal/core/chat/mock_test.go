package chat

import (
	"context"

	"github.com/typemate/typemate/internal/llm"
)

type MockLLM struct {
	Reply       string
	ChatErr     error
	Title       string
	GenerateErr error

	Calls   [][]llm.Message
	Prompts []string
}

func (m *MockLLM) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResponse, error) {
	m.Calls = append(m.Calls, messages)
	if m.ChatErr != nil {
		return nil, m.ChatErr
	}
	return &llm.ChatResponse{Content: m.Reply, Model: "mock-model", PromptTokens: 12, CompletionTokens: 7}, nil
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	return m.Title, nil
}

type MockEmbedder struct {
	Vector []float32
	Err    error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
