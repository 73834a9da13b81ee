package server

import (
	"context"

	"github.com/typemate/typemate/internal/llm"
)

type MockLLM struct {
	Reply   string
	ChatErr error
}

func (m *MockLLM) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResponse, error) {
	if m.ChatErr != nil {
		return nil, m.ChatErr
	}
	return &llm.ChatResponse{Content: m.Reply, Model: "mock"}, nil
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return `{"title": "Test chat"}`, nil
}

type MockEmbedder struct {
	Vector []float32
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.Vector, nil
}
