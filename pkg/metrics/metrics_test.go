package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Document(StatusIngested, time.Second)
	m.Entities("Organization", 3)
	m.Retrieval(RetrievalHit, time.Millisecond)
	m.CacheLookup(true)
	m.Chat("stream", true)
	m.StoreError("save")
	m.Reset()
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Document(StatusIngested, 10*time.Millisecond)
	m.Document(StatusIngested, 10*time.Millisecond)
	m.Document(StatusUnavailable, 0)
	m.Entities("Person", 2)
	m.Entities("Person", 0)
	m.Retrieval(RetrievalNoKeywords, 0)
	m.Reset()

	if got := testutil.ToFloat64(m.DocumentsTotal.WithLabelValues(StatusIngested)); got != 2 {
		t.Fatalf("expected 2 ingested, got %v", got)
	}
	if got := testutil.ToFloat64(m.DocumentsTotal.WithLabelValues(StatusUnavailable)); got != 1 {
		t.Fatalf("expected 1 unavailable, got %v", got)
	}
	if got := testutil.ToFloat64(m.EntitiesTotal.WithLabelValues("Person")); got != 2 {
		t.Fatalf("expected 2 person mentions, got %v", got)
	}
	if got := testutil.ToFloat64(m.RetrievalsTotal.WithLabelValues(RetrievalNoKeywords)); got != 1 {
		t.Fatalf("expected 1 retrieval, got %v", got)
	}
	if got := testutil.ToFloat64(m.ResetsTotal); got != 1 {
		t.Fatalf("expected 1 reset, got %v", got)
	}
}
