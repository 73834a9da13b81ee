package llm

import (
	"context"
	"time"
)

// Observer receives the outcome of every provider call.
type Observer interface {
	ObserveLLMCall(provider, operation string, err error, elapsed time.Duration)
}

// InstrumentedClient reports chat and embedding calls to an Observer.
type InstrumentedClient struct {
	provider string
	llm      LLMClient
	embedder EmbedderClient
	obs      Observer
}

// Instrument wraps the clients returned by NewClient. embedder may be nil,
// in which case the returned EmbedderClient is nil as well.
func Instrument(provider string, llmClient LLMClient, embedder EmbedderClient, obs Observer) (LLMClient, EmbedderClient) {
	c := &InstrumentedClient{provider: provider, llm: llmClient, embedder: embedder, obs: obs}
	if embedder == nil {
		return c, nil
	}
	return c, c
}

func (c *InstrumentedClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	start := time.Now()
	resp, err := c.llm.Chat(ctx, messages, opts)
	c.obs.ObserveLLMCall(c.provider, "chat", err, time.Since(start))
	return resp, err
}

func (c *InstrumentedClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.llm.Generate(ctx, prompt)
	c.obs.ObserveLLMCall(c.provider, "generate", err, time.Since(start))
	return out, err
}

func (c *InstrumentedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := c.embedder.Embed(ctx, text)
	c.obs.ObserveLLMCall(c.provider, "embed", err, time.Since(start))
	return vec, err
}
