package store

import (
	"context"
	"errors"
	"time"

	"github.com/typemate/typemate/internal/core/model"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// VectorStore is the subset of MemoryStore the vector memory depends on.
type VectorStore interface {
	// SetEmbedding stores the vector of a memory and stamps embedding_updated_at.
	SetEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error
	// MatchMemories runs the match_memories similarity search.
	MatchMemories(ctx context.Context, params model.MatchParams) ([]model.MemoryMatch, error)
	// ListUnembedded returns memories without an embedding, oldest first.
	ListUnembedded(ctx context.Context, limit int) ([]model.Memory, error)
	// CountMemories counts memories of userID, or of everyone when userID is empty.
	CountMemories(ctx context.Context, userID string) (model.MemoryCounts, error)
}

type MemoryStore interface {
	VectorStore
	InsertMemory(ctx context.Context, m *model.Memory) error
	GetMemory(ctx context.Context, userID, id string) (*model.Memory, error)
	ListMemories(ctx context.Context, userID string, filter model.MemoryFilter) ([]model.Memory, error)
	// UpdateMemoryContent replaces the content and clears the embedding,
	// which no longer describes the new text.
	UpdateMemoryContent(ctx context.Context, userID, id, content string, at time.Time) (*model.Memory, error)
	DeleteMemory(ctx context.Context, userID, id string) error
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p *model.Profile) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, userID, id string) (*model.Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
}

type Store interface {
	MemoryStore
	ProfileStore
	SessionStore
	Close() error
}
