// Package supabase persists TypeMate data through the Supabase PostgREST API.
//
// supabase-go does not accept a context, so request cancellation is not
// propagated to PostgREST calls.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/store"
)

type Store struct {
	client *supabase.Client
	logger *zap.Logger
}

// New wraps a service-role client; the same client validates access tokens.
func New(client *supabase.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}
}

func (s *Store) Client() *supabase.Client {
	return s.client
}

func (s *Store) Close() error {
	return nil
}

type memoryRow struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	SessionID          *string    `json:"session_id"`
	Role               string     `json:"role"`
	Content            string     `json:"content"`
	Archetype          *string    `json:"archetype"`
	EmbeddingUpdatedAt *time.Time `json:"embedding_updated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Similarity         *float64   `json:"similarity,omitempty"`
}

func toMemoryRow(m *model.Memory) memoryRow {
	return memoryRow{
		ID:        m.ID,
		UserID:    m.UserID,
		SessionID: optional(m.SessionID),
		Role:      string(m.Role),
		Content:   m.Content,
		Archetype: optional(m.Archetype),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (r memoryRow) toModel() model.Memory {
	return model.Memory{
		ID:                 r.ID,
		UserID:             r.UserID,
		SessionID:          deref(r.SessionID),
		Role:               model.Role(r.Role),
		Content:            r.Content,
		Archetype:          deref(r.Archetype),
		EmbeddingUpdatedAt: r.EmbeddingUpdatedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) InsertMemory(_ context.Context, m *model.Memory) error {
	_, _, err := s.client.From(store.TableMemories).
		Insert(toMemoryRow(m), false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: insert memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(_ context.Context, userID, id string) (*model.Memory, error) {
	var rows []memoryRow
	_, err := s.client.From(store.TableMemories).
		Select(store.MemoryColumns, "", false).
		Eq("id", id).
		Eq("user_id", userID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: get memory: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	m := rows[0].toModel()
	return &m, nil
}

func (s *Store) ListMemories(_ context.Context, userID string, filter model.MemoryFilter) ([]model.Memory, error) {
	q := s.client.From(store.TableMemories).
		Select(store.MemoryColumns, "", false).
		Eq("user_id", userID)
	if filter.SessionID != "" {
		q = q.Eq("session_id", filter.SessionID)
	}

	var rows []memoryRow
	_, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: filter.Ascending}).
		Limit(filter.Limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: list memories: %w", err)
	}
	return rowsToModels(rows), nil
}

func rowsToModels(rows []memoryRow) []model.Memory {
	out := make([]model.Memory, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

func (s *Store) UpdateMemoryContent(_ context.Context, userID, id, content string, at time.Time) (*model.Memory, error) {
	patch := map[string]any{
		"content":              content,
		"updated_at":           at,
		"embedding":            nil,
		"embedding_updated_at": nil,
	}

	var rows []memoryRow
	_, err := s.client.From(store.TableMemories).
		Update(patch, "representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: update memory: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	m := rows[0].toModel()
	return &m, nil
}

func (s *Store) DeleteMemory(_ context.Context, userID, id string) error {
	var rows []memoryRow
	_, err := s.client.From(store.TableMemories).
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("supabase: delete memory: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetEmbedding(_ context.Context, id string, embedding []float32, at time.Time) error {
	patch := map[string]any{
		"embedding":            pgvector.NewVector(embedding).String(),
		"embedding_updated_at": at,
	}
	_, _, err := s.client.From(store.TableMemories).
		Update(patch, "minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: set embedding: %w", err)
	}
	return nil
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

// decodeRPC interprets the raw body returned by Client.Rpc, which reports
// transport failures as an empty string and PostgREST failures as an error
// object instead of an array.
func decodeRPC(body string) ([]memoryRow, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty rpc response")
	}
	if strings.HasPrefix(body, "{") {
		var rerr rpcError
		if err := json.Unmarshal([]byte(body), &rerr); err == nil && (rerr.Message != "" || rerr.Code != "") {
			return nil, fmt.Errorf("rpc error %s: %s", rerr.Code, rerr.Message)
		}
		return nil, fmt.Errorf("unexpected rpc response: %s", body)
	}

	var rows []memoryRow
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	return rows, nil
}

func (s *Store) MatchMemories(_ context.Context, p model.MatchParams) ([]model.MemoryMatch, error) {
	body := s.client.Rpc(store.RPCMatchMemories, "", map[string]any{
		"query_embedding": pgvector.NewVector(p.Embedding).String(),
		"match_threshold": p.Threshold,
		"match_count":     p.Count,
		"p_user_id":       p.UserID,
	})

	rows, err := decodeRPC(body)
	if err != nil {
		return nil, fmt.Errorf("supabase: %s: %w", store.RPCMatchMemories, err)
	}

	out := make([]model.MemoryMatch, 0, len(rows))
	for _, r := range rows {
		mm := model.MemoryMatch{Memory: r.toModel()}
		if r.Similarity != nil {
			mm.Similarity = *r.Similarity
		}
		out = append(out, mm)
	}
	return out, nil
}

func (s *Store) ListUnembedded(_ context.Context, limit int) ([]model.Memory, error) {
	var rows []memoryRow
	_, err := s.client.From(store.TableMemories).
		Select(store.MemoryColumns, "", false).
		Is("embedding", "null").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: list unembedded: %w", err)
	}
	return rowsToModels(rows), nil
}

func (s *Store) countWhere(userID string, pendingOnly bool) (int64, error) {
	q := s.client.From(store.TableMemories).Select("id", "exact", true)
	if userID != "" {
		q = q.Eq("user_id", userID)
	}
	if pendingOnly {
		q = q.Is("embedding", "null")
	}
	_, count, err := q.Execute()
	return count, err
}

func (s *Store) CountMemories(_ context.Context, userID string) (model.MemoryCounts, error) {
	var c model.MemoryCounts
	total, err := s.countWhere(userID, false)
	if err != nil {
		return c, fmt.Errorf("supabase: count memories: %w", err)
	}
	pending, err := s.countWhere(userID, true)
	if err != nil {
		return c, fmt.Errorf("supabase: count pending memories: %w", err)
	}
	c.Total = total
	c.Pending = pending
	c.Vectorized = total - pending
	return c, nil
}

type profileRow struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	MBTIType    *string   `json:"mbti_type"`
	BirthDate   *string   `json:"birth_date"`
	ZodiacSign  *string   `json:"zodiac_sign"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Store) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	var rows []profileRow
	_, err := s.client.From(store.TableProfiles).
		Select(store.ProfileColumns, "", false).
		Eq("user_id", userID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	r := rows[0]
	return &model.Profile{
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		MBTIType:    deref(r.MBTIType),
		BirthDate:   deref(r.BirthDate),
		ZodiacSign:  deref(r.ZodiacSign),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (s *Store) UpsertProfile(_ context.Context, p *model.Profile) error {
	row := profileRow{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		MBTIType:    optional(p.MBTIType),
		BirthDate:   optional(p.BirthDate),
		ZodiacSign:  optional(p.ZodiacSign),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	_, _, err := s.client.From(store.TableProfiles).
		Upsert(row, "user_id", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: upsert profile: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *model.Session) error {
	_, _, err := s.client.From(store.TableSessions).
		Insert(sess, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, userID, id string) (*model.Session, error) {
	var rows []model.Session
	_, err := s.client.From(store.TableSessions).
		Select(store.SessionColumns, "", false).
		Eq("id", id).
		Eq("user_id", userID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) ListSessions(_ context.Context, userID string, limit int) ([]model.Session, error) {
	var rows []model.Session
	_, err := s.client.From(store.TableSessions).
		Select(store.SessionColumns, "", false).
		Eq("user_id", userID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: list sessions: %w", err)
	}
	return rows, nil
}

func (s *Store) TouchSession(_ context.Context, id string, at time.Time) error {
	_, _, err := s.client.From(store.TableSessions).
		Update(map[string]any{"updated_at": at}, "minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: touch session: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
