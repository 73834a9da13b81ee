package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/store/memstore"
)

func newTestService(t *testing.T, emb *MockEmbedder) (*Service, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	v, err := NewVector(emb, ms, testOptions(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return NewService(ms, v, nil), ms
}

func TestService_CreateEmbeds(t *testing.T) {
	svc, ms := newTestService(t, &MockEmbedder{Vector: []float32{0.6, 0.8}})
	ctx := context.Background()

	m, err := svc.Create(ctx, "u1", CreateInput{Content: "  I love hiking  ", Archetype: "infp"})
	require.NoError(t, err)
	assert.Equal(t, "I love hiking", m.Content)
	assert.Equal(t, model.RoleUser, m.Role)
	assert.Equal(t, "INFP", m.Archetype)
	assert.NotNil(t, m.EmbeddingUpdatedAt)

	counts, err := ms.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Vectorized)
}

func TestService_CreateSurvivesEmbeddingFailure(t *testing.T) {
	svc, ms := newTestService(t, &MockEmbedder{Err: errors.New("quota")})
	ctx := context.Background()

	m, err := svc.Create(ctx, "u1", CreateInput{Content: "hello"})
	require.NoError(t, err)
	assert.Nil(t, m.EmbeddingUpdatedAt)

	counts, err := ms.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService(t, &MockEmbedder{Vector: []float32{1}})
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", CreateInput{Content: "   "})
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Create(ctx, "u1", CreateInput{Content: "x", Role: "tool"})
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Create(ctx, "u1", CreateInput{Content: strings.Repeat("a", MaxContentRunes+1)})
	assert.True(t, apperr.IsValidation(err))
}

func TestService_CreateChecksSessionOwner(t *testing.T) {
	svc, ms := newTestService(t, &MockEmbedder{Vector: []float32{1}})
	ctx := context.Background()

	theirs := uuid.NewString()
	require.NoError(t, ms.CreateSession(ctx, &model.Session{ID: theirs, UserID: "u2", Archetype: "ENFP"}))

	for _, id := range []string{theirs, uuid.NewString(), "not-a-uuid"} {
		_, err := svc.Create(ctx, "u1", CreateInput{Content: "note", SessionID: id})
		assert.True(t, apperr.IsNotFound(err), id)
	}

	counts, err := ms.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestService_ListDefaultsAndScope(t *testing.T) {
	svc, ms := newTestService(t, &MockEmbedder{Vector: []float32{1}})
	ctx := context.Background()

	sessionID := uuid.NewString()
	require.NoError(t, ms.CreateSession(ctx, &model.Session{ID: sessionID, UserID: "u1", Archetype: "ENFP"}))

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "u1", CreateInput{Content: "note", SessionID: sessionID})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "u1", CreateInput{Content: "loose"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u2", CreateInput{Content: "other"})
	require.NoError(t, err)

	got, err := svc.List(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = svc.List(ctx, "u1", ListOptions{SessionID: sessionID})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = svc.List(ctx, "u1", ListOptions{SessionID: "nope"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestService_UpdateReembeds(t *testing.T) {
	emb := &MockEmbedder{Vector: []float32{1, 0}}
	svc, _ := newTestService(t, emb)
	ctx := context.Background()

	m, err := svc.Create(ctx, "u1", CreateInput{Content: "old"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "u1", m.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Content)
	assert.NotNil(t, updated.EmbeddingUpdatedAt)
	assert.Equal(t, []string{"old", "new"}, emb.Calls)

	_, err = svc.Update(ctx, "u2", m.ID, "hijack")
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_GetDelete(t *testing.T) {
	svc, _ := newTestService(t, &MockEmbedder{Vector: []float32{1}})
	ctx := context.Background()

	m, err := svc.Create(ctx, "u1", CreateInput{Content: "keep"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Content)

	_, err = svc.Get(ctx, "u2", m.ID)
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, svc.Delete(ctx, "u1", m.ID))
	assert.True(t, apperr.IsNotFound(svc.Delete(ctx, "u1", m.ID)))
}
