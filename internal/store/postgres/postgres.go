// Package postgres talks to the TypeMate schema directly over pgx, with
// pgvector types registered on every connection.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/store"
)

//go:embed schema.sql
var schemaTemplate string

// Schema renders the DDL for the given embedding dimension.
func Schema(dimensions int) string {
	return fmt.Sprintf(schemaTemplate, dimensions)
}

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	logger.Info("connected to postgres")
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the embedded schema over a plain connection; the pool
// opened by New cannot start before the vector type exists. Every statement
// is idempotent.
func Migrate(ctx context.Context, databaseURL string, dimensions int) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, Schema(dimensions)); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

const memorySelect = `SELECT id::text, user_id::text, COALESCE(session_id::text, ''), role, content,
	COALESCE(archetype, ''), embedding_updated_at, created_at, updated_at FROM memories`

func scanMemory(row pgx.Row) (*model.Memory, error) {
	var m model.Memory
	var role string
	if err := row.Scan(&m.ID, &m.UserID, &m.SessionID, &role, &m.Content, &m.Archetype,
		&m.EmbeddingUpdatedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

func collectMemories(rows pgx.Rows) ([]model.Memory, error) {
	defer rows.Close()
	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) InsertMemory(ctx context.Context, m *model.Memory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memories (id, user_id, session_id, role, content, archetype, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, nullable(m.SessionID), string(m.Role), m.Content, nullable(m.Archetype), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert memory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, userID, id string) (*model.Memory, error) {
	m, err := scanMemory(s.pool.QueryRow(ctx, memorySelect+` WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get memory: %w", err)
	}
	return m, nil
}

func (s *Store) ListMemories(ctx context.Context, userID string, filter model.MemoryFilter) ([]model.Memory, error) {
	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}
	query := memorySelect + ` WHERE user_id = $1 AND ($2 = '' OR session_id::text = $2) ORDER BY created_at ` + order + ` LIMIT $3`

	rows, err := s.pool.Query(ctx, query, userID, filter.SessionID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list memories: %w", err)
	}
	return collectMemories(rows)
}

func (s *Store) UpdateMemoryContent(ctx context.Context, userID, id, content string, at time.Time) (*model.Memory, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE memories SET content = $3, updated_at = $4, embedding = NULL, embedding_updated_at = NULL
		WHERE id = $1 AND user_id = $2
		RETURNING id::text, user_id::text, COALESCE(session_id::text, ''), role, content,
			COALESCE(archetype, ''), embedding_updated_at, created_at, updated_at`,
		id, userID, content, at)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: update memory: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMemory(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memories SET embedding = $2, embedding_updated_at = $3 WHERE id = $1`,
		id, pgvector.NewVector(embedding), at)
	if err != nil {
		return fmt.Errorf("postgres: set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MatchMemories(ctx context.Context, p model.MatchParams) ([]model.MemoryMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id::text, COALESCE(session_id::text, ''), role, content,
			COALESCE(archetype, ''), embedding_updated_at, created_at, updated_at, similarity
		FROM match_memories($1, $2, $3, $4)`,
		pgvector.NewVector(p.Embedding), p.Threshold, p.Count, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("postgres: match memories: %w", err)
	}
	defer rows.Close()

	var out []model.MemoryMatch
	for rows.Next() {
		var mm model.MemoryMatch
		var role string
		if err := rows.Scan(&mm.ID, &mm.UserID, &mm.SessionID, &role, &mm.Content, &mm.Archetype,
			&mm.EmbeddingUpdatedAt, &mm.CreatedAt, &mm.UpdatedAt, &mm.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		mm.Role = model.Role(role)
		out = append(out, mm)
	}
	return out, rows.Err()
}

func (s *Store) ListUnembedded(ctx context.Context, limit int) ([]model.Memory, error) {
	rows, err := s.pool.Query(ctx, memorySelect+` WHERE embedding IS NULL ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unembedded: %w", err)
	}
	return collectMemories(rows)
}

func (s *Store) CountMemories(ctx context.Context, userID string) (model.MemoryCounts, error) {
	var c model.MemoryCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(embedding), COUNT(*) - COUNT(embedding)
		FROM memories WHERE ($1 = '' OR user_id::text = $1)`, userID).Scan(&c.Total, &c.Vectorized, &c.Pending)
	if err != nil {
		return c, fmt.Errorf("postgres: count memories: %w", err)
	}
	return c, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id::text, display_name, COALESCE(mbti_type, ''), COALESCE(birth_date, ''),
			COALESCE(zodiac_sign, ''), created_at, updated_at
		FROM user_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.DisplayName, &p.MBTIType, &p.BirthDate, &p.ZodiacSign, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}
	return &p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *model.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_profiles (user_id, display_name, mbti_type, birth_date, zodiac_sign, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			mbti_type = EXCLUDED.mbti_type,
			birth_date = EXCLUDED.birth_date,
			zodiac_sign = EXCLUDED.zodiac_sign,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.DisplayName, nullable(p.MBTIType), nullable(p.BirthDate), nullable(p.ZodiacSign), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert profile: %w", err)
	}
	return nil
}

const sessionSelect = `SELECT id::text, user_id::text, archetype, title, created_at, updated_at FROM chat_sessions`

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, user_id, archetype, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, sess.Archetype, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, userID, id string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx, sessionSelect+` WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&sess.ID, &sess.UserID, &sess.Archetype, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx, sessionSelect+` WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Archetype, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("postgres: touch session: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
