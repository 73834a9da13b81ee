// Package chat runs the companion conversation: it resolves the session and
// archetype, recalls relevant memories, calls the chat model and records the
// exchange.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/config"
	"github.com/typemate/typemate/internal/core/memory"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/core/persona"
	"github.com/typemate/typemate/internal/llm"
	"github.com/typemate/typemate/internal/store"
)

const (
	MaxMessageRunes     = 4000
	DefaultSessionLimit = 20
	MaxSessionLimit     = 100
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

type Request struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
	Archetype string `json:"archetype" binding:"omitempty,mbti"`
}

type Reply struct {
	SessionID        string `json:"session_id"`
	Title            string `json:"title"`
	Archetype        string `json:"archetype"`
	Reply            string `json:"reply"`
	MemoriesUsed     int    `json:"memories_used"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type Service struct {
	llm      llm.LLMClient
	store    store.Store
	vector   *memory.Vector
	memories *memory.Service
	personas *persona.Catalog
	titles   *TitleGenerator
	cfg      config.ChatConfig
	opts     llm.ChatOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	llmClient llm.LLMClient,
	st store.Store,
	vector *memory.Vector,
	memories *memory.Service,
	personas *persona.Catalog,
	cfg config.ChatConfig,
	opts llm.ChatOptions,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 5
	}
	if _, ok := persona.Normalize(cfg.DefaultArchetype); !ok {
		cfg.DefaultArchetype = "ENFP"
	}
	return &Service{
		llm:      llmClient,
		store:    st,
		vector:   vector,
		memories: memories,
		personas: personas,
		titles:   NewTitleGenerator(llmClient, cfg.TitlePrompt),
		cfg:      cfg,
		opts:     opts,
		logger:   logger.Named("chat"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send answers one user message.
func (s *Service) Send(ctx context.Context, userID string, req Request) (*Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageRunes {
		return nil, apperr.Validationf("message exceeds %d characters", MaxMessageRunes)
	}

	var requested string
	if req.Archetype != "" {
		code, ok := persona.Normalize(req.Archetype)
		if !ok {
			return nil, apperr.Validationf("invalid archetype %q", req.Archetype)
		}
		requested = code
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load profile", zap.String("user_id", userID), zap.Error(err))
		}
		profile = nil
	}

	// A new session is only created once the model has answered.
	var session *model.Session
	if req.SessionID != "" {
		session, err = s.loadSession(ctx, userID, req.SessionID)
		if err != nil {
			return nil, err
		}
	}
	archetype := requested
	if archetype == "" && session != nil {
		archetype = session.Archetype
	}
	if archetype == "" {
		archetype = s.cfg.DefaultArchetype
	}
	p, ok := s.personas.Get(archetype)
	if !ok {
		p, _ = s.personas.Get(s.cfg.DefaultArchetype)
	}

	var recalled []model.MemoryMatch
	if s.vector != nil {
		recalled = s.vector.SearchSimilar(ctx, userID, message, memory.SearchOptions{Limit: s.cfg.MemoryLimit})
	}

	var history []model.Memory
	if session != nil {
		history, err = s.recentHistory(ctx, userID, session.ID, s.cfg.HistoryLimit)
		if err != nil {
			return nil, apperr.Internal("failed to load history", err)
		}
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: buildSystemPrompt(p, profile, recalled)})
	for _, h := range history {
		switch h.Role {
		case model.RoleUser:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: h.Content})
		case model.RoleAssistant:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: h.Content})
		}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	resp, err := s.llm.Chat(ctx, msgs, s.opts)
	if err != nil {
		status := llm.StatusCode(err)
		s.logger.Error("chat completion failed",
			zap.String("user_id", userID),
			zap.String("session_id", req.SessionID),
			zap.Int("status", status),
			zap.Error(err))
		return nil, apperr.Upstream("chat completion failed", status, err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, apperr.Upstream("chat completion returned no content", 0, nil)
	}

	if session == nil {
		session, err = s.startSession(ctx, userID, p.Code, message)
		if err != nil {
			return nil, err
		}
	}

	s.record(ctx, userID, session.ID, p.Code, model.RoleUser, message)
	s.record(ctx, userID, session.ID, p.Code, model.RoleAssistant, content)
	if err := s.store.TouchSession(ctx, session.ID, s.now()); err != nil {
		s.logger.Warn("failed to touch session", zap.String("session_id", session.ID), zap.Error(err))
	}

	return &Reply{
		SessionID:        session.ID,
		Title:            session.Title,
		Archetype:        p.Code,
		Reply:            content,
		MemoriesUsed:     len(recalled),
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

func (s *Service) loadSession(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	if uuid.Validate(sessionID) != nil {
		return nil, apperr.NotFound("session not found")
	}
	sess, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("session not found")
		}
		return nil, apperr.Internal("failed to load session", err)
	}
	return sess, nil
}

// startSession creates the session for a first exchange, titled from the
// opening message.
func (s *Service) startSession(ctx context.Context, userID, archetype, firstMessage string) (*model.Session, error) {
	title, err := s.titles.Generate(ctx, firstMessage)
	if err != nil {
		s.logger.Debug("title generation failed, using message prefix", zap.Error(err))
		title = FallbackTitle(firstMessage)
	}
	return s.CreateSession(ctx, userID, archetype, title)
}

// record saves one side of the exchange. Failures are logged; the reply has
// already been produced and is still returned.
func (s *Service) record(ctx context.Context, userID, sessionID, archetype string, role model.Role, content string) {
	if s.memories == nil {
		return
	}
	_, err := s.memories.Create(ctx, userID, memory.CreateInput{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Archetype: archetype,
	})
	if err != nil {
		s.logger.Warn("failed to record message",
			zap.String("session_id", sessionID),
			zap.String("role", string(role)),
			zap.Error(err))
	}
}

// recentHistory returns the last limit messages of a session, oldest first.
func (s *Service) recentHistory(ctx context.Context, userID, sessionID string, limit int) ([]model.Memory, error) {
	rows, err := s.store.ListMemories(ctx, userID, model.MemoryFilter{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// CreateSession starts an empty session. An empty archetype uses the default.
func (s *Service) CreateSession(ctx context.Context, userID, archetype, title string) (*model.Session, error) {
	code := s.cfg.DefaultArchetype
	if archetype != "" {
		c, ok := persona.Normalize(archetype)
		if !ok {
			return nil, apperr.Validationf("invalid archetype %q", archetype)
		}
		code = c
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}

	now := s.now()
	sess := &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Archetype: code,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, apperr.Internal("failed to create session", err)
	}
	return sess, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	limit = clampLimit(limit, DefaultSessionLimit, MaxSessionLimit)
	out, err := s.store.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list sessions", err)
	}
	if out == nil {
		out = []model.Session{}
	}
	return out, nil
}

// Messages returns the last limit messages of one of the user's sessions,
// oldest first.
func (s *Service) Messages(ctx context.Context, userID, sessionID string, limit int) ([]model.Memory, error) {
	if _, err := s.loadSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.recentHistory(ctx, userID, sessionID, clampLimit(limit, DefaultMessageLimit, MaxMessageLimit))
	if err != nil {
		return nil, apperr.Internal("failed to load messages", err)
	}
	if rows == nil {
		rows = []model.Memory{}
	}
	return rows, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
