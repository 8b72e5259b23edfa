// Package metrics holds the Prometheus instruments of the ingest and query
// paths. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Document outcomes.
const (
	StatusIngested    = "ingested"
	StatusEmpty       = "empty"
	StatusUnavailable = "source_unavailable"
	StatusFailed      = "failed"
)

// Retrieval outcomes.
const (
	RetrievalHit        = "hit"
	RetrievalMiss       = "miss"
	RetrievalNoKeywords = "no_keywords"
	RetrievalError      = "error"
)

type Metrics struct {
	DocumentsTotal    *prometheus.CounterVec
	EntitiesTotal     *prometheus.CounterVec
	IngestSeconds     prometheus.Histogram
	RetrievalsTotal   *prometheus.CounterVec
	RetrievalSeconds  prometheus.Histogram
	CacheLookupsTotal *prometheus.CounterVec
	ChatRequestsTotal *prometheus.CounterVec
	StoreErrorsTotal  *prometheus.CounterVec
	ResetsTotal       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_documents_total",
				Help: "Documents processed by the materializer, by outcome",
			},
			[]string{"status"},
		),
		EntitiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_entity_mentions_total",
				Help: "Entity mentions written, by category",
			},
			[]string{"category"},
		),
		IngestSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "graph_ingest_document_seconds",
				Help:    "Time to extract and persist one document",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		RetrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_retrievals_total",
				Help: "Keyword retrievals, by outcome",
			},
			[]string{"outcome"},
		),
		RetrievalSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "graph_retrieval_seconds",
				Help:    "Keyword retrieval latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_retrieval_cache_lookups_total",
				Help: "Retrieval cache lookups, by result",
			},
			[]string{"result"},
		),
		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Chat requests, by mode and grounding",
			},
			[]string{"mode", "grounded"},
		),
		StoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_store_errors_total",
				Help: "Graph store failures, by operation",
			},
			[]string{"op"},
		),
		ResetsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "graph_resets_total",
				Help: "Full graph resets",
			},
		),
	}
}

func (m *Metrics) Document(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(status).Inc()
	if status == StatusIngested || status == StatusEmpty {
		m.IngestSeconds.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Entities(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntitiesTotal.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) Retrieval(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.WithLabelValues(outcome).Inc()
	if outcome != RetrievalNoKeywords {
		m.RetrievalSeconds.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Chat(mode string, grounded bool) {
	if m == nil {
		return
	}
	g := "false"
	if grounded {
		g = "true"
	}
	m.ChatRequestsTotal.WithLabelValues(mode, g).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.ResetsTotal.Inc()
}
