package store

// Table, column and RPC names shared by the Postgres-backed drivers.
const (
	TableMemories = "memories"
	TableProfiles = "user_profiles"
	TableSessions = "chat_sessions"

	RPCMatchMemories = "match_memories"

	MemoryColumns  = "id,user_id,session_id,role,content,archetype,embedding_updated_at,created_at,updated_at"
	ProfileColumns = "user_id,display_name,mbti_type,birth_date,zodiac_sign,created_at,updated_at"
	SessionColumns = "id,user_id,archetype,title,created_at,updated_at"
)
