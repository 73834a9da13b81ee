package memory

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/store"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
	MaxContentRunes  = 10000
)

type CreateInput struct {
	SessionID string     `json:"session_id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Archetype string     `json:"archetype"`
}

type ListOptions struct {
	SessionID string
	Limit     int
	Ascending bool
}

// Store is the persistence Service needs: memories, plus sessions to check
// that a memory is filed under one of the user's own sessions.
type Store interface {
	store.MemoryStore
	store.SessionStore
}

// Service is the user-facing memory CRUD. Writes attach embeddings
// best-effort through the Vector.
type Service struct {
	store  Store
	vector *Vector
	logger *zap.Logger
	now    func() time.Time
}

func NewService(ms Store, vector *Vector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  ms,
		vector: vector,
		logger: logger.Named("memory.service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return "", apperr.Validationf("content exceeds %d characters", MaxContentRunes)
	}
	return content, nil
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Memory, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, apperr.Validationf("invalid role %q", role)
	}
	if in.SessionID != "" {
		if err := s.checkSession(ctx, userID, in.SessionID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	m := &model.Memory{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: in.SessionID,
		Role:      role,
		Content:   content,
		Archetype: strings.ToUpper(in.Archetype),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertMemory(ctx, m); err != nil {
		return nil, apperr.Internal("failed to save memory", err)
	}

	if s.vector != nil && s.vector.AttachEmbedding(ctx, m.ID, m.Content) {
		if fresh, err := s.store.GetMemory(ctx, userID, m.ID); err == nil {
			return fresh, nil
		}
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, userID string, opts ListOptions) ([]model.Memory, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	// Session ids are UUIDs; anything else matches no memory.
	if opts.SessionID != "" && uuid.Validate(opts.SessionID) != nil {
		return []model.Memory{}, nil
	}

	out, err := s.store.ListMemories(ctx, userID, model.MemoryFilter{
		SessionID: opts.SessionID,
		Limit:     limit,
		Ascending: opts.Ascending,
	})
	if err != nil {
		return nil, apperr.Internal("failed to list memories", err)
	}
	if out == nil {
		out = []model.Memory{}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*model.Memory, error) {
	m, err := s.store.GetMemory(ctx, userID, id)
	if err != nil {
		return nil, mapStoreErr(err, "memory not found", "failed to load memory")
	}
	return m, nil
}

// Update replaces the content of a memory and refreshes its embedding.
func (s *Service) Update(ctx context.Context, userID, id, content string) (*model.Memory, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	m, err := s.store.UpdateMemoryContent(ctx, userID, id, content, s.now())
	if err != nil {
		return nil, mapStoreErr(err, "memory not found", "failed to update memory")
	}

	if s.vector != nil && s.vector.AttachEmbedding(ctx, m.ID, m.Content) {
		if fresh, err := s.store.GetMemory(ctx, userID, m.ID); err == nil {
			return fresh, nil
		}
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteMemory(ctx, userID, id); err != nil {
		return mapStoreErr(err, "memory not found", "failed to delete memory")
	}
	return nil
}

// checkSession reports NotFound unless sessionID is one of the user's sessions.
func (s *Service) checkSession(ctx context.Context, userID, sessionID string) error {
	if uuid.Validate(sessionID) != nil {
		return apperr.NotFound("session not found")
	}
	if _, err := s.store.GetSession(ctx, userID, sessionID); err != nil {
		return mapStoreErr(err, "session not found", "failed to load session")
	}
	return nil
}

func mapStoreErr(err error, notFound, internal string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Internal(internal, err)
}
