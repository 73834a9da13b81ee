package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Addr       string `toml:"addr"`
	Mode       string `toml:"mode"` // gin mode: debug, release, test
	AdminToken string `toml:"admin_token"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type AuthConfig struct {
	// Mode is "supabase" (bearer tokens checked against Supabase Auth)
	// or "header" (trust X-User-ID, local development only).
	Mode string `toml:"mode"`
}

type LLMConfig struct {
	Provider       string  `toml:"provider"`
	Model          string  `toml:"model"`
	EmbeddingModel string  `toml:"embedding_model"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float32 `toml:"temperature"`
}

type SupabaseConfig struct {
	URL            string `toml:"url"`
	ServiceRoleKey string `toml:"service_role_key"`
}

type StoreConfig struct {
	Driver      string `toml:"driver"` // supabase, postgres, memory
	DatabaseURL string `toml:"database_url"`
	Dimensions  int    `toml:"dimensions"`
}

type MemoryConfig struct {
	MaxEmbeddingChars   int     `toml:"max_embedding_chars"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MatchCount          int     `toml:"match_count"`
	BackfillBatchSize   int     `toml:"backfill_batch_size"`
	BackfillMaxBatch    int     `toml:"backfill_max_batch"`
	BackfillDelayMS     int     `toml:"backfill_delay_ms"`
	EmbeddingCacheSize  int64   `toml:"embedding_cache_size"`
}

// BackfillDelay is the pause between two embedding calls of a backfill run.
func (m MemoryConfig) BackfillDelay() time.Duration {
	return time.Duration(m.BackfillDelayMS) * time.Millisecond
}

type ChatConfig struct {
	DefaultArchetype string `toml:"default_archetype"`
	HistoryLimit     int    `toml:"history_limit"`
	MemoryLimit      int    `toml:"memory_limit"`
	TitlePrompt      string `toml:"title_prompt"`
}

type TracingConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
	ServiceName  string `toml:"service_name"`
}

type Config struct {
	Server   ServerConfig      `toml:"server"`
	Log      LogConfig         `toml:"log"`
	Auth     AuthConfig        `toml:"auth"`
	LLM      LLMConfig         `toml:"llm"`
	Supabase SupabaseConfig    `toml:"supabase"`
	Store    StoreConfig       `toml:"store"`
	Memory   MemoryConfig      `toml:"memory"`
	Chat     ChatConfig        `toml:"chat"`
	Tracing  TracingConfig     `toml:"tracing"`
	Personas map[string]string `toml:"personas"` // MBTI code -> persona prompt override
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", Mode: "release"},
		Log:    LogConfig{Level: "info"},
		Auth:   AuthConfig{Mode: "supabase"},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			MaxTokens:      800,
			Temperature:    0.8,
		},
		Store: StoreConfig{Driver: "supabase", Dimensions: 1536},
		Memory: MemoryConfig{
			MaxEmbeddingChars:   8000,
			SimilarityThreshold: 0.7,
			MatchCount:          5,
			BackfillBatchSize:   50,
			BackfillMaxBatch:    100,
			BackfillDelayMS:     100,
			EmbeddingCacheSize:  1 << 24,
		},
		Chat: ChatConfig{
			DefaultArchetype: "ENFP",
			HistoryLimit:     20,
			MemoryLimit:      5,
			TitlePrompt: `Give a short title (at most 6 words) for a conversation that starts with the message below.
Respond with JSON only: {"title": "..."}

Message:
%s`,
		},
		Tracing: TracingConfig{ServiceName: "typemate"},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file is
// not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when present.
func (c *Config) ApplyEnv() {
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")

	setString(&c.Supabase.URL, "SUPABASE_URL")
	setString(&c.Supabase.ServiceRoleKey, "SUPABASE_SERVICE_ROLE_KEY")
	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.DatabaseURL, "DATABASE_URL")

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	setString(&c.Server.AdminToken, "ADMIN_TOKEN")
	setString(&c.Auth.Mode, "AUTH_MODE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Tracing.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("MEMORY_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Memory.SimilarityThreshold = f
		}
	}
}

// Validate checks the settings the selected drivers depend on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
			return fmt.Errorf("store driver supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store driver postgres requires DATABASE_URL")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	switch strings.ToLower(c.Auth.Mode) {
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
			return fmt.Errorf("auth mode supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case "header":
	default:
		return fmt.Errorf("unsupported auth mode: %s", c.Auth.Mode)
	}

	if c.Memory.SimilarityThreshold < 0 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("memory.similarity_threshold must be within [0, 1], got %v", c.Memory.SimilarityThreshold)
	}
	if c.Memory.BackfillMaxBatch < 1 {
		return fmt.Errorf("memory.backfill_max_batch must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
