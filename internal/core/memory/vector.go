// Package memory implements the companion's long-term memory: embedding
// generation, similarity search over stored messages and the backfill of rows
// that were saved without a vector.
//
// Vendor failures never escape this package as errors. An embedding that
// cannot be produced is nil, an attach that fails is false and a search that
// fails is empty; callers treat memory as an enhancement, not a dependency.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/typemate/typemate/internal/config"
	"github.com/typemate/typemate/internal/core/common"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/llm"
	"github.com/typemate/typemate/internal/store"
)

const (
	MinMatchCount = 1
	MaxMatchCount = 50
)

var tracer = otel.Tracer("github.com/typemate/typemate/internal/core/memory")

// Metrics receives the outcome of embedding calls and backfill rows.
// Outcomes are "ok", "error", "cached" and "skipped".
type Metrics interface {
	EmbeddingOutcome(outcome string)
	BackfillRow(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) EmbeddingOutcome(string) {}
func (nopMetrics) BackfillRow(bool)        {}

type Options struct {
	MaxChars   int
	Threshold  float64
	MatchCount int
	BatchSize  int
	MaxBatch   int
	Delay      time.Duration
	CacheSize  int64 // bytes of vectors kept in the cache, 0 disables it
}

func OptionsFromConfig(c config.MemoryConfig) Options {
	return Options{
		MaxChars:   c.MaxEmbeddingChars,
		Threshold:  c.SimilarityThreshold,
		MatchCount: c.MatchCount,
		BatchSize:  c.BackfillBatchSize,
		MaxBatch:   c.BackfillMaxBatch,
		Delay:      c.BackfillDelay(),
		CacheSize:  c.EmbeddingCacheSize,
	}
}

type Vector struct {
	embedder llm.EmbedderClient
	store    store.VectorStore
	opts     Options
	cache    *ristretto.Cache
	logger   *zap.Logger
	metrics  Metrics
	now      func() time.Time
}

// NewVector builds the vector memory. A nil embedder is allowed (providers
// without an embeddings API): every embedding is then nil.
func NewVector(embedder llm.EmbedderClient, vs store.VectorStore, opts Options, logger *zap.Logger, metrics Metrics) (*Vector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 8000
	}
	if opts.MatchCount <= 0 {
		opts.MatchCount = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 100
	}

	v := &Vector{
		embedder: embedder,
		store:    vs,
		opts:     opts,
		logger:   logger.Named("memory"),
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}

	if opts.CacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     opts.CacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		v.cache = cache
	}
	return v, nil
}

// Close releases the embedding cache.
func (v *Vector) Close() {
	if v.cache != nil {
		v.cache.Close()
	}
}

// Threshold is the default minimum similarity used by SearchSimilar.
func (v *Vector) Threshold() float64 {
	return v.opts.Threshold
}

// GenerateEmbedding embeds text truncated to the configured number of runes.
// It returns nil for blank text and on any failure.
func (v *Vector) GenerateEmbedding(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" || v.embedder == nil {
		v.metrics.EmbeddingOutcome("skipped")
		return nil
	}
	text = common.Truncate(text, v.opts.MaxChars)

	if v.cache != nil {
		if cached, ok := v.cache.Get(text); ok {
			v.metrics.EmbeddingOutcome("cached")
			return cached.([]float32)
		}
	}

	vec, err := v.embedder.Embed(ctx, text)
	if err != nil {
		v.metrics.EmbeddingOutcome("error")
		v.logger.Warn("embedding request failed",
			zap.Int("chars", len([]rune(text))),
			zap.Int("status", llm.StatusCode(err)),
			zap.Error(err))
		return nil
	}
	if len(vec) == 0 {
		v.metrics.EmbeddingOutcome("error")
		v.logger.Warn("embedding response was empty")
		return nil
	}

	v.metrics.EmbeddingOutcome("ok")
	if v.cache != nil {
		v.cache.Set(text, vec, int64(len(vec)*4))
	}
	return vec
}

// AttachEmbedding embeds text and stores the vector on memory id.
func (v *Vector) AttachEmbedding(ctx context.Context, id, text string) bool {
	vec := v.GenerateEmbedding(ctx, text)
	if vec == nil {
		return false
	}
	if err := v.store.SetEmbedding(ctx, id, vec, v.now()); err != nil {
		v.logger.Error("failed to store embedding", zap.String("memory_id", id), zap.Error(err))
		return false
	}
	return true
}

type SearchOptions struct {
	Limit     int
	Threshold *float64
}

// SearchSimilar returns the user's memories closest to query, best first.
// Matches below the threshold are dropped whatever the store returned.
func (v *Vector) SearchSimilar(ctx context.Context, userID, query string, opts SearchOptions) []model.MemoryMatch {
	ctx, span := tracer.Start(ctx, "memory.SearchSimilar")
	defer span.End()

	limit := opts.Limit
	if limit == 0 {
		limit = v.opts.MatchCount
	}
	limit = clamp(limit, MinMatchCount, MaxMatchCount)

	threshold := v.opts.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	span.SetAttributes(attribute.Int("memory.limit", limit), attribute.Float64("memory.threshold", threshold))

	vec := v.GenerateEmbedding(ctx, query)
	if vec == nil {
		return []model.MemoryMatch{}
	}

	matches, err := v.store.MatchMemories(ctx, model.MatchParams{
		UserID:    userID,
		Embedding: vec,
		Threshold: threshold,
		Count:     limit,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "match_memories failed")
		v.logger.Error("similarity search failed", zap.String("user_id", userID), zap.Error(err))
		return []model.MemoryMatch{}
	}

	out := make([]model.MemoryMatch, 0, len(matches))
	for _, m := range matches {
		if m.Similarity < threshold {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	span.SetAttributes(attribute.Int("memory.results", len(out)))
	return out
}

type BackfillResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Backfill embeds up to limit memories that have no vector, oldest first.
// Rows are handled one at a time with a fixed pause after each embedding call.
// A failed row is counted and left for a later run. On cancellation the
// partial result is returned with the context error.
func (v *Vector) Backfill(ctx context.Context, limit int) (BackfillResult, error) {
	ctx, span := tracer.Start(ctx, "memory.Backfill")
	defer span.End()

	var res BackfillResult
	if limit <= 0 {
		limit = v.opts.BatchSize
	}
	if limit > v.opts.MaxBatch {
		limit = v.opts.MaxBatch
	}

	rows, err := v.store.ListUnembedded(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return res, err
	}

	// pause is emptied when a call returns, so each Wait blocks a full Delay
	// measured from the end of the previous embedding call.
	var pause *rate.Limiter
	for _, m := range rows {
		if err := ctx.Err(); err != nil {
			span.SetAttributes(backfillAttrs(res)...)
			return res, err
		}
		if pause != nil {
			if err := pause.Wait(ctx); err != nil {
				span.SetAttributes(backfillAttrs(res)...)
				return res, err
			}
		}

		ok := v.AttachEmbedding(ctx, m.ID, m.Content)
		res.Processed++
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
		v.metrics.BackfillRow(ok)

		if v.opts.Delay > 0 {
			pause = rate.NewLimiter(rate.Every(v.opts.Delay), 1)
			pause.Allow()
		}
	}

	span.SetAttributes(backfillAttrs(res)...)
	v.logger.Info("backfill finished",
		zap.Int("processed", res.Processed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res, nil
}

func backfillAttrs(r BackfillResult) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("backfill.processed", r.Processed),
		attribute.Int("backfill.succeeded", r.Succeeded),
		attribute.Int("backfill.failed", r.Failed),
	}
}

// Stats counts vectorized and pending memories. An empty userID counts all users.
func (v *Vector) Stats(ctx context.Context, userID string) (model.MemoryCounts, error) {
	return v.store.CountMemories(ctx, userID)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
