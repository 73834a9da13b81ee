package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/store"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, userID string, n int) []*model.Memory {
	t.Helper()
	var out []*model.Memory
	for i := 0; i < n; i++ {
		m := &model.Memory{
			ID:        fmt.Sprintf("%s-m%d", userID, i),
			UserID:    userID,
			SessionID: "s1",
			Role:      model.RoleUser,
			Content:   fmt.Sprintf("memory %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.InsertMemory(context.Background(), m))
		out = append(out, m)
	}
	return out
}

func TestListMemories_OrderAndScope(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "alice", 3)
	seed(t, s, "bob", 2)

	got, err := s.ListMemories(ctx, "alice", model.MemoryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice-m2", got[0].ID, "newest first")

	got, err = s.ListMemories(ctx, "alice", model.MemoryFilter{Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, "alice-m0", got[0].ID)

	got, err = s.ListMemories(ctx, "alice", model.MemoryFilter{SessionID: "other"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetMemory(ctx, "bob", "alice-m0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMatchMemories(t *testing.T) {
	s := New()
	ctx := context.Background()
	ms := seed(t, s, "alice", 3)

	require.NoError(t, s.SetEmbedding(ctx, ms[0].ID, []float32{1, 0, 0}, base))
	require.NoError(t, s.SetEmbedding(ctx, ms[1].ID, []float32{0.8, 0.6, 0}, base))
	require.NoError(t, s.SetEmbedding(ctx, ms[2].ID, []float32{0, 0, 1}, base))

	matches, err := s.MatchMemories(ctx, model.MatchParams{UserID: "alice", Embedding: []float32{1, 0, 0}, Threshold: 0.5, Count: 10})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, ms[0].ID, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
	assert.Equal(t, ms[1].ID, matches[1].ID)
	assert.InDelta(t, 0.8, matches[1].Similarity, 1e-5)

	// other users never see alice's memories
	matches, err = s.MatchMemories(ctx, model.MatchParams{UserID: "bob", Embedding: []float32{1, 0, 0}, Threshold: 0, Count: 10})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestUnembeddedAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	ms := seed(t, s, "alice", 3)
	seed(t, s, "bob", 1)

	require.NoError(t, s.SetEmbedding(ctx, ms[0].ID, []float32{1, 0}, base))

	pending, err := s.ListUnembedded(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "bob-m0", pending[0].ID, "oldest first")

	pending, err = s.ListUnembedded(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	c, err := s.CountMemories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.MemoryCounts{Total: 3, Vectorized: 1, Pending: 2}, c)

	c, err = s.CountMemories(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Total)
}

func TestUpdateClearsEmbedding(t *testing.T) {
	s := New()
	ctx := context.Background()
	ms := seed(t, s, "alice", 1)
	require.NoError(t, s.SetEmbedding(ctx, ms[0].ID, []float32{1, 0}, base))

	updated, err := s.UpdateMemoryContent(ctx, "alice", ms[0].ID, "new text", base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "new text", updated.Content)
	assert.False(t, updated.HasEmbedding())
	assert.Nil(t, updated.EmbeddingUpdatedAt)

	matches, err := s.MatchMemories(ctx, model.MatchParams{UserID: "alice", Embedding: []float32{1, 0}, Threshold: 0, Count: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = s.UpdateMemoryContent(ctx, "bob", ms[0].ID, "hijack", base)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteMemory(t *testing.T) {
	s := New()
	ctx := context.Background()
	ms := seed(t, s, "alice", 1)
	require.NoError(t, s.SetEmbedding(ctx, ms[0].ID, []float32{1, 0}, base))

	assert.ErrorIs(t, s.DeleteMemory(ctx, "bob", ms[0].ID), store.ErrNotFound)
	require.NoError(t, s.DeleteMemory(ctx, "alice", ms[0].ID))
	assert.ErrorIs(t, s.DeleteMemory(ctx, "alice", ms[0].ID), store.ErrNotFound)

	assert.ErrorIs(t, s.SetEmbedding(ctx, ms[0].ID, []float32{1}, base), store.ErrNotFound)
}

func TestProfilesAndSessions(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertProfile(ctx, &model.Profile{UserID: "alice", DisplayName: "Alice", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.UpsertProfile(ctx, &model.Profile{UserID: "alice", DisplayName: "Al", CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)}))
	p, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Al", p.DisplayName)
	assert.Equal(t, base, p.CreatedAt, "created_at survives upserts")

	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "s1", UserID: "alice", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "s2", UserID: "alice", CreatedAt: base, UpdatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.TouchSession(ctx, "s1", base.Add(time.Hour)))

	sessions, err := s.ListSessions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID, "most recently touched first")

	_, err = s.GetSession(ctx, "bob", "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
