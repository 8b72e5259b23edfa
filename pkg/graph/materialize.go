package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

var ErrNoRecognizer = errors.New("graph: no recognizer configured")

// DocumentResult describes one materialized document.
type DocumentResult struct {
	Publication common.Publication
	Entities    []common.Entity
}

// Empty reports a document in which no entity was recognized. The
// publication node is still written.
func (r DocumentResult) Empty() bool { return len(r.Entities) == 0 }

// SkippedDocument is a document left out of a run.
type SkippedDocument struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// IngestReport summarizes an ingestion run.
type IngestReport struct {
	Ingested int                     `json:"ingested"`
	Empty    int                     `json:"empty"`
	Skipped  []SkippedDocument       `json:"skipped"`
	Entities map[common.Category]int `json:"entities"`
	Duration time.Duration           `json:"duration"`
}

func newIngestReport() *IngestReport {
	return &IngestReport{Skipped: []SkippedDocument{}, Entities: make(map[common.Category]int)}
}

// ExtractEntities recognizes, classifies and cleans the entities of text.
// Spans with unmapped labels are dropped; duplicates within the text
// collapse onto the first occurrence.
func (g *GraphClient) ExtractEntities(ctx context.Context, text string) ([]common.Entity, error) {
	if g.recognizer == nil {
		return nil, ErrNoRecognizer
	}
	spans, err := g.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("recognize entities: %w", err)
	}

	seen := make(map[string]struct{}, len(spans))
	entities := make([]common.Entity, 0, len(spans))
	for _, span := range spans {
		category, ok := Classify(span.Label)
		if !ok {
			continue
		}
		e, ok := NewEntity(category, span.Text)
		if !ok {
			continue
		}
		if _, dup := seen[e.ID()]; dup {
			continue
		}
		seen[e.ID()] = struct{}{}
		entities = append(entities, e)
	}
	return entities, nil
}

// IngestDocument materializes one document: its publication node, its
// entities and the mention edges, written in a single store call. Text is
// taken from doc.Text or resolved through the loader.
func (g *GraphClient) IngestDocument(ctx context.Context, doc common.Document) (DocumentResult, error) {
	start := time.Now()
	text := doc.Text
	if text == "" {
		if g.loader == nil {
			return DocumentResult{}, fmt.Errorf("%w: %q: no loader configured", common.ErrSourceUnavailable, doc.Title)
		}
		var err error
		text, err = loader.DocumentText(ctx, g.loader, doc)
		if err != nil {
			return DocumentResult{}, err
		}
	}

	pub := NewPublication(doc)
	entities, err := g.ExtractEntities(ctx, text)
	if err != nil {
		return DocumentResult{}, err
	}

	err = g.storeCall(ctx, true, func(ctx context.Context) error {
		return g.store.SaveDocument(ctx, pub, entities)
	})
	if err != nil {
		g.metrics.StoreError("save_document")
		return DocumentResult{}, fmt.Errorf("save %q: %w", pub.Title, err)
	}

	res := DocumentResult{Publication: pub, Entities: entities}
	status := metrics.StatusIngested
	if res.Empty() {
		status = metrics.StatusEmpty
	}
	g.metrics.Document(status, time.Since(start))
	for _, c := range common.Categories {
		g.metrics.Entities(string(c), countCategory(entities, c))
	}
	logger.Debug("[Graph] Ingested document", "title", pub.Title, "entities", len(entities))
	return res, nil
}

func countCategory(entities []common.Entity, c common.Category) int {
	n := 0
	for _, e := range entities {
		if e.Category == c {
			n++
		}
	}
	return n
}

// IngestAll materializes docs. Documents whose text cannot be read or
// processed are skipped and listed in the report; a store failure aborts
// the run. Documents already written stay written.
func (g *GraphClient) IngestAll(ctx context.Context, docs []common.Document) (*IngestReport, error) {
	start := time.Now()
	report := newIngestReport()
	var mu sync.Mutex

	logger.Info("[Graph] Processing", "total_documents", len(docs), "parallel", g.parallelDocuments)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelDocuments)

	for _, doc := range docs {
		eg.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			res, err := g.IngestDocument(gCtx, doc)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Ingested++
				if res.Empty() {
					report.Empty++
				}
				for _, e := range res.Entities {
					report.Entities[e.Category]++
				}
				return nil
			case errors.Is(err, common.ErrStoreUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, common.ErrSourceUnavailable):
				g.metrics.Document(metrics.StatusUnavailable, 0)
			default:
				g.metrics.Document(metrics.StatusFailed, 0)
			}
			logger.Warn("[Graph] Skipping document", "title", doc.Title, "err", err)
			report.Skipped = append(report.Skipped, SkippedDocument{Title: doc.Title, Reason: err.Error()})
			return nil
		})
	}

	err := eg.Wait()
	report.Duration = time.Since(start)
	if report.Ingested > 0 {
		g.invalidateCache(ctx)
	}
	if err != nil {
		logger.Error("[Graph] Ingestion aborted", "ingested", report.Ingested, "err", err)
		return report, fmt.Errorf("ingestion aborted: %w", err)
	}
	logger.Info("[Graph] Ingestion completed",
		"ingested", report.Ingested,
		"empty", report.Empty,
		"skipped", len(report.Skipped),
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// ResetGraph deletes every node and edge and drops cached retrievals.
func (g *GraphClient) ResetGraph(ctx context.Context) error {
	err := g.storeCall(ctx, true, g.store.DeleteAll)
	if err != nil {
		g.metrics.StoreError("delete_all")
		return fmt.Errorf("reset graph: %w", err)
	}
	g.metrics.Reset()
	g.invalidateCache(ctx)
	logger.Info("[Graph] Graph reset")
	return nil
}

func (g *GraphClient) invalidateCache(ctx context.Context) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Invalidate(ctx); err != nil {
		logger.Warn("[Graph] Failed to invalidate retrieval cache", "err", err)
	}
}

// Rebuild resets the graph and ingests docs from scratch.
func (g *GraphClient) Rebuild(ctx context.Context, docs []common.Document) (*IngestReport, error) {
	if err := g.ResetGraph(ctx); err != nil {
		return newIngestReport(), err
	}
	return g.IngestAll(ctx, docs)
}
