// Package memstore is an in-process Store for local development and tests.
// Similarity search runs on chromem-go collections, one per user.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	db          *chromem.DB
	collections map[string]*chromem.Collection
	memories    map[string]*model.Memory
	profiles    map[string]*model.Profile
	sessions    map[string]*model.Session
}

func New() *Store {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		memories:    make(map[string]*model.Memory),
		profiles:    make(map[string]*model.Profile),
		sessions:    make(map[string]*model.Session),
	}
}

func (s *Store) Close() error {
	return nil
}

// collection must be called with s.mu held for writing.
func (s *Store) collection(userID string) (*chromem.Collection, error) {
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}
	// Embeddings are always supplied, so no embedding func is configured.
	col, err := s.db.CreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memstore: create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *Store) InsertMemory(_ context.Context, m *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.memories[m.ID]; exists {
		return fmt.Errorf("memstore: memory %s already exists", m.ID)
	}
	cp := *m
	cp.Embedding = nil
	cp.EmbeddingUpdatedAt = nil
	s.memories[m.ID] = &cp
	return nil
}

func (s *Store) GetMemory(_ context.Context, userID, id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[id]
	if !ok || m.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMemories(_ context.Context, userID string, filter model.MemoryFilter) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Memory
	for _, m := range s.memories {
		if m.UserID != userID {
			continue
		}
		if filter.SessionID != "" && m.SessionID != filter.SessionID {
			continue
		}
		out = append(out, *m)
	}
	sortByCreated(out, filter.Ascending)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sortByCreated(ms []model.Memory, ascending bool) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ascending {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
}

func (s *Store) UpdateMemoryContent(ctx context.Context, userID, id, content string, at time.Time) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.UserID != userID {
		return nil, store.ErrNotFound
	}
	m.Content = content
	m.UpdatedAt = at
	m.Embedding = nil
	m.EmbeddingUpdatedAt = nil
	if col, ok := s.collections[userID]; ok {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return nil, fmt.Errorf("memstore: drop stale vector: %w", err)
		}
	}
	cp := *m
	return &cp, nil
}

func (s *Store) DeleteMemory(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok || m.UserID != userID {
		return store.ErrNotFound
	}
	if col, ok := s.collections[userID]; ok && m.HasEmbedding() {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("memstore: delete vector: %w", err)
		}
	}
	delete(s.memories, id)
	return nil
}

func (s *Store) SetEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return store.ErrNotFound
	}
	col, err := s.collection(m.UserID)
	if err != nil {
		return err
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	doc := chromem.Document{
		ID:        id,
		Content:   m.Content,
		Embedding: vec,
		Metadata:  map[string]string{"role": string(m.Role)},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("memstore: add document: %w", err)
	}

	m.Embedding = vec
	stamp := at
	m.EmbeddingUpdatedAt = &stamp
	return nil
}

// MatchMemories mirrors the match_memories SQL function: cosine similarity
// strictly above the threshold, best first, at most Count results.
func (s *Store) MatchMemories(ctx context.Context, p model.MatchParams) ([]model.MemoryMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[p.UserID]
	if !ok || col.Count() == 0 || p.Count <= 0 {
		return nil, nil
	}

	n := p.Count
	if n > col.Count() {
		n = col.Count()
	}
	results, err := col.QueryEmbedding(ctx, p.Embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memstore: query: %w", err)
	}

	var out []model.MemoryMatch
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim <= p.Threshold {
			continue
		}
		m, ok := s.memories[r.ID]
		if !ok {
			continue
		}
		out = append(out, model.MemoryMatch{Memory: *m, Similarity: sim})
	}
	return out, nil
}

func (s *Store) ListUnembedded(_ context.Context, limit int) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Memory
	for _, m := range s.memories {
		if !m.HasEmbedding() {
			out = append(out, *m)
		}
	}
	sortByCreated(out, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountMemories(_ context.Context, userID string) (model.MemoryCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c model.MemoryCounts
	for _, m := range s.memories {
		if userID != "" && m.UserID != userID {
			continue
		}
		c.Total++
		if m.HasEmbedding() {
			c.Vectorized++
		} else {
			c.Pending++
		}
	}
	return c, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpsertProfile(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	if existing, ok := s.profiles[p.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	s.profiles[p.UserID] = &cp
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("memstore: session %s already exists", sess.ID)
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(_ context.Context, userID, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) ListSessions(_ context.Context, userID string, limit int) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.UpdatedAt = at
	return nil
}

var _ store.Store = (*Store)(nil)
