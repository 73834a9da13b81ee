package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/core/astro"
	"github.com/typemate/typemate/internal/core/chat"
	"github.com/typemate/typemate/internal/core/memory"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/core/profile"
)

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"provider":   s.Config.LLM.Provider,
		"model":      s.Config.LLM.Model,
		"embeddings": s.Embeddings,
		"store":      s.Config.Store.Driver,
		"time":       time.Now().UTC(),
	})
}

func (s *Server) ListPersonas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"personas": s.Personas.All()})
}

func (s *Server) SendChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	reply, err := s.Chat.Send(c.Request.Context(), userID(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) ListSessions(c *gin.Context) {
	sessions, err := s.Chat.ListSessions(c.Request.Context(), userID(c), queryInt(c, "limit"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type CreateSessionRequest struct {
	Archetype string `json:"archetype" binding:"omitempty,mbti"`
	Title     string `json:"title" binding:"max=120"`
}

func (s *Server) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	sess, err := s.Chat.CreateSession(c.Request.Context(), userID(c), req.Archetype, req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) SessionMessages(c *gin.Context) {
	msgs, err := s.Chat.Messages(c.Request.Context(), userID(c), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) GetProfile(c *gin.Context) {
	p, err := s.Profiles.Get(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) PutProfile(c *gin.Context) {
	var in profile.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c)
		return
	}

	p, err := s.Profiles.Upsert(c.Request.Context(), userID(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// TodayHoroscope uses the profile's sign, or ?sign= when given.
func (s *Server) TodayHoroscope(c *gin.Context) {
	today := time.Now().UTC()

	if q := c.Query("sign"); q != "" {
		sign, ok := astro.ParseSign(q)
		if !ok {
			s.fail(c, apperr.Validationf("unknown zodiac sign %q", q))
			return
		}
		c.JSON(http.StatusOK, astro.DailyFortune(sign, today))
		return
	}

	f, err := s.Profiles.Horoscope(c.Request.Context(), userID(c), today)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) ListMemories(c *gin.Context) {
	mems, err := s.Memories.List(c.Request.Context(), userID(c), memory.ListOptions{
		SessionID: c.Query("session_id"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": mems})
}

type CreateMemoryRequest struct {
	Content   string `json:"content" binding:"required"`
	Role      string `json:"role" binding:"omitempty,oneof=user assistant system"`
	SessionID string `json:"session_id"`
	Archetype string `json:"archetype" binding:"omitempty,mbti"`
}

func (s *Server) CreateMemory(c *gin.Context) {
	var req CreateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	m, err := s.Memories.Create(c.Request.Context(), userID(c), memory.CreateInput{
		SessionID: req.SessionID,
		Role:      model.Role(req.Role),
		Content:   req.Content,
		Archetype: req.Archetype,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

type UpdateMemoryRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) UpdateMemory(c *gin.Context) {
	var req UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	m, err := s.Memories.Update(c.Request.Context(), userID(c), c.Param("id"), req.Content)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) DeleteMemory(c *gin.Context) {
	if err := s.Memories.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type SearchRequest struct {
	Query     string   `json:"query" binding:"required"`
	Limit     int      `json:"limit" binding:"omitempty,min=1,max=50"`
	Threshold *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
}

func (s *Server) SearchMemories(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	results := s.Vector.SearchSimilar(c.Request.Context(), userID(c), req.Query, memory.SearchOptions{
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) MemoryStatus(c *gin.Context) {
	counts, err := s.Vector.Stats(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, apperr.Internal("failed to count memories", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":      counts.Total,
		"vectorized": counts.Vectorized,
		"pending":    counts.Pending,
		"coverage":   counts.Coverage(),
		"embeddings": s.Embeddings,
	})
}

func (s *Server) BackfillMemories(c *gin.Context) {
	res, err := s.Vector.Backfill(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		s.fail(c, apperr.Internal("backfill failed", err))
		return
	}

	remaining, err := s.Vector.Stats(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "pending": remaining.Pending})
}
