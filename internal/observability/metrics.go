package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the service. Each collector owns
// its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	LLMRequests *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec

	Embeddings   *prometheus.CounterVec
	BackfillRows *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LLMRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of model provider calls",
			},
			[]string{"provider", "operation", "status"},
		),
		LLMDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Model provider call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "operation"},
		),
		Embeddings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_embeddings_total",
				Help:      "Embedding requests by outcome (ok, error, cached, skipped)",
			},
			[]string{"outcome"},
		),
		BackfillRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_backfill_rows_total",
				Help:      "Memories processed by backfill runs",
			},
			[]string{"result"},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.LLMRequests, c.LLMDuration,
		c.Embeddings, c.BackfillRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveLLMCall implements llm.Observer.
func (c *Collector) ObserveLLMCall(provider, operation string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.LLMRequests.WithLabelValues(provider, operation, status).Inc()
	c.LLMDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// EmbeddingOutcome and BackfillRow implement memory.Metrics.
func (c *Collector) EmbeddingOutcome(outcome string) {
	c.Embeddings.WithLabelValues(outcome).Inc()
}

func (c *Collector) BackfillRow(ok bool) {
	result := "succeeded"
	if !ok {
		result = "failed"
	}
	c.BackfillRows.WithLabelValues(result).Inc()
}
