// Package app assembles the TypeMate services from configuration. It is
// shared by the HTTP server and the memoryctl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/config"
	"github.com/typemate/typemate/internal/core/chat"
	"github.com/typemate/typemate/internal/core/memory"
	"github.com/typemate/typemate/internal/core/persona"
	"github.com/typemate/typemate/internal/core/profile"
	"github.com/typemate/typemate/internal/llm"
	"github.com/typemate/typemate/internal/observability"
	"github.com/typemate/typemate/internal/store"
	"github.com/typemate/typemate/internal/store/memstore"
	"github.com/typemate/typemate/internal/store/postgres"
	supastore "github.com/typemate/typemate/internal/store/supabase"
)

const DefaultConfigPath = "config/config.toml"

// LoadConfig reads .env, the TOML file (CONFIG_PATH or path) and the
// environment overrides, then validates the result.
func LoadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector

	Store    store.Store
	Supabase *supabase.Client // nil unless a Supabase project is configured
	LLM      llm.LLMClient
	Embedder llm.EmbedderClient

	Personas *persona.Catalog
	Vector   *memory.Vector
	Memories *memory.Service
	Profiles *profile.Service
	Chat     *chat.Service

	closers []func(context.Context) error
}

// New connects to the configured store and model provider and builds the
// services on top of them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewCollector("typemate"),
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceRoleKey != "" {
		client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, nil)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to create supabase client: %w", err)
		}
		a.Supabase = client
	}

	st, err := OpenStore(ctx, cfg, a.Supabase, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	rawLLM, rawEmbedder, err := llm.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if closer, ok := rawLLM.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return closer.Close() })
	}
	if rawEmbedder == nil {
		logger.Warn("provider has no embeddings API; memory vectorization is disabled",
			zap.String("provider", cfg.LLM.Provider))
	}
	a.LLM, a.Embedder = llm.Instrument(strings.ToLower(cfg.LLM.Provider), rawLLM, rawEmbedder, a.Metrics)

	a.Vector, err = memory.NewVector(a.Embedder, st, memory.OptionsFromConfig(cfg.Memory), logger, a.Metrics)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create vector memory: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { a.Vector.Close(); return nil })

	a.Personas = persona.NewCatalog(cfg.Personas)
	a.Memories = memory.NewService(st, a.Vector, logger)
	a.Profiles = profile.NewService(st, logger)
	a.Chat = chat.NewService(a.LLM, st, a.Vector, a.Memories, a.Personas, cfg.Chat,
		llm.ChatOptions{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}, logger)

	return a, nil
}

// OpenStore opens the backend selected by store.driver. The supabase driver
// shares sb, the client also used for token validation.
func OpenStore(ctx context.Context, cfg *config.Config, sb *supabase.Client, logger *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "supabase":
		if sb == nil {
			return nil, fmt.Errorf("store driver supabase requires a supabase client")
		}
		return supastore.New(sb, logger), nil
	case "postgres":
		return postgres.New(ctx, cfg.Store.DatabaseURL, logger)
	case "memory":
		logger.Warn("using the in-memory store; data is lost on restart")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// Close releases everything New opened, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
