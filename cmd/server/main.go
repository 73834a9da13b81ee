package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/app"
	"github.com/typemate/typemate/internal/observability"
	"github.com/typemate/typemate/internal/server"
)

func main() {
	cfg, err := app.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}

	var auth server.Authenticator = server.HeaderAuthenticator{}
	if strings.EqualFold(cfg.Auth.Mode, "supabase") {
		auth = server.NewSupabaseAuthenticator(a.Supabase)
	} else {
		logger.Warn("trusting X-User-ID headers; do not use this mode in production")
	}

	gin.SetMode(cfg.Server.Mode)
	srv := server.NewServer(server.Deps{
		Config:     cfg,
		Logger:     logger,
		Metrics:    a.Metrics,
		Auth:       auth,
		Chat:       a.Chat,
		Memories:   a.Memories,
		Vector:     a.Vector,
		Profiles:   a.Profiles,
		Personas:   a.Personas,
		Embeddings: a.Embedder != nil,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("store", cfg.Store.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", zap.Error(err))
	}
}
