package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/config"
	"github.com/typemate/typemate/internal/core/chat"
	"github.com/typemate/typemate/internal/core/memory"
	"github.com/typemate/typemate/internal/core/persona"
	"github.com/typemate/typemate/internal/core/profile"
	"github.com/typemate/typemate/internal/observability"
)

type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Collector
	Auth     Authenticator
	Chat     *chat.Service
	Memories *memory.Service
	Vector   *memory.Vector
	Profiles *profile.Service
	Personas *persona.Catalog
	// Embeddings reports whether the provider can vectorize memories.
	Embeddings bool
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	registerValidators()
	return &Server{Deps: d}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(s.Logger.Named("http")))
	if s.Metrics != nil {
		r.Use(Metrics(s.Metrics))
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	r.GET("/api/status", s.Status)
	r.GET("/api/personas", s.ListPersonas)

	api := r.Group("/api", RequireUser(s.Auth))
	{
		api.POST("/chat", s.SendChat)

		api.GET("/sessions", s.ListSessions)
		api.POST("/sessions", s.CreateSession)
		api.GET("/sessions/:id/messages", s.SessionMessages)

		api.GET("/profile", s.GetProfile)
		api.PUT("/profile", s.PutProfile)
		api.GET("/horoscope/today", s.TodayHoroscope)

		api.GET("/memories", s.ListMemories)
		api.POST("/memories", s.CreateMemory)
		api.PATCH("/memories/:id", s.UpdateMemory)
		api.DELETE("/memories/:id", s.DeleteMemory)
		api.POST("/memories/search", s.SearchMemories)
		api.GET("/memories/status", s.MemoryStatus)
	}

	admin := r.Group("/api/admin", RequireAdmin(s.Config.Server.AdminToken))
	admin.POST("/memories/backfill", s.BackfillMemories)

	return r
}

// fail answers with the status of err and a message safe for clients.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
}
