package model

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles a memory may carry.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Memory struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	SessionID          string     `json:"session_id,omitempty"`
	Role               Role       `json:"role"`
	Content            string     `json:"content"`
	Archetype          string     `json:"archetype,omitempty"`
	Embedding          []float32  `json:"-"`
	EmbeddingUpdatedAt *time.Time `json:"embedding_updated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasEmbedding reports whether the memory has been vectorized.
func (m Memory) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// MemoryMatch is a memory returned by similarity search.
type MemoryMatch struct {
	Memory
	Similarity float64 `json:"similarity"`
}

type MemoryFilter struct {
	SessionID string
	Limit     int
	// Ascending lists oldest first; the default is newest first.
	Ascending bool
}

type MatchParams struct {
	UserID    string
	Embedding []float32
	Threshold float64
	Count     int
}

type MemoryCounts struct {
	Total      int64 `json:"total"`
	Vectorized int64 `json:"vectorized"`
	Pending    int64 `json:"pending"`
}

// Coverage is the vectorized share of all memories, 0 when there are none.
func (c MemoryCounts) Coverage() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Vectorized) / float64(c.Total)
}
