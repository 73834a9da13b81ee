package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/typemate/typemate/internal/core/model"
)

type MockEmbedder struct {
	mu     sync.Mutex
	Vector []float32
	Err    error
	// FailOn makes Embed fail for these exact inputs.
	FailOn map[string]bool
	// OnCall runs before every call; used to cancel contexts mid-run.
	OnCall func(n int)
	Calls  []string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	n := len(m.Calls)
	m.mu.Unlock()

	if m.OnCall != nil {
		m.OnCall(n)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.FailOn[text] {
		return nil, errors.New("embedding failed")
	}
	return m.Vector, nil
}

func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

type MockVectorStore struct {
	Matches    []model.MemoryMatch
	MatchErr   error
	MatchCalls []model.MatchParams

	Unembedded []model.Memory
	ListErr    error
	ListLimit  int

	SetErr  error
	SetIDs  []string
	SetAt   []time.Time
	Counts  model.MemoryCounts
	CountOf string
}

func (m *MockVectorStore) SetEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.SetIDs = append(m.SetIDs, id)
	m.SetAt = append(m.SetAt, at)
	return nil
}

func (m *MockVectorStore) MatchMemories(ctx context.Context, params model.MatchParams) ([]model.MemoryMatch, error) {
	m.MatchCalls = append(m.MatchCalls, params)
	if m.MatchErr != nil {
		return nil, m.MatchErr
	}
	return m.Matches, nil
}

func (m *MockVectorStore) ListUnembedded(ctx context.Context, limit int) ([]model.Memory, error) {
	m.ListLimit = limit
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if len(m.Unembedded) > limit {
		return m.Unembedded[:limit], nil
	}
	return m.Unembedded, nil
}

func (m *MockVectorStore) CountMemories(ctx context.Context, userID string) (model.MemoryCounts, error) {
	m.CountOf = userID
	return m.Counts, nil
}

type recordingMetrics struct {
	outcomes []string
	rows     []bool
}

func (r *recordingMetrics) EmbeddingOutcome(outcome string) { r.outcomes = append(r.outcomes, outcome) }
func (r *recordingMetrics) BackfillRow(ok bool)            { r.rows = append(r.rows, ok) }
