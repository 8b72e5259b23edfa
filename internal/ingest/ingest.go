// Package ingest runs graph rebuilds from a publication manifest. Runs are
// serialized through a lease so the server, the worker and the command line
// never write the graph at the same time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/graph"
	"github.com/spacebio/knowledge-engine/backend/pkg/leaselock"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader/manifest"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
)

var ErrEmptyManifest = errors.New("manifest lists no documents")

// Job describes one ingestion run. Reset clears the graph first.
type Job struct {
	ID           string `json:"job_id"`
	ManifestPath string `json:"manifest_path"`
	Reset        bool   `json:"reset"`
}

// Materializer is the part of the graph client a run needs.
type Materializer interface {
	IngestAll(ctx context.Context, docs []common.Document) (*graph.IngestReport, error)
	Rebuild(ctx context.Context, docs []common.Document) (*graph.IngestReport, error)
	ResetGraph(ctx context.Context) error
}

type Runner struct {
	graph  Materializer
	locker leaselock.Locker
}

func NewRunner(g Materializer, locker leaselock.Locker) *Runner {
	if locker == nil {
		locker = leaselock.NewLocalLocker()
	}
	return &Runner{graph: g, locker: locker}
}

// Run reads the job's manifest and ingests it while holding the rebuild
// lease. It returns leaselock.ErrBusy when another run is active.
func (r *Runner) Run(ctx context.Context, job Job) (*graph.IngestReport, error) {
	docs, err := manifest.ReadFile(job.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", job.ManifestPath, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyManifest, job.ManifestPath)
	}
	return r.RunDocuments(ctx, job, docs)
}

// RunDocuments is Run for documents that are already loaded.
func (r *Runner) RunDocuments(ctx context.Context, job Job, docs []common.Document) (*graph.IngestReport, error) {
	log := logger.With("job_id", job.ID)
	log.Info("[Ingest] Starting run", "documents", len(docs), "reset", job.Reset)

	start := time.Now()
	var report *graph.IngestReport
	err := r.locker.WithLease(ctx, leaselock.RebuildKey, func(ctx context.Context) error {
		var err error
		if job.Reset {
			report, err = r.graph.Rebuild(ctx, docs)
		} else {
			report, err = r.graph.IngestAll(ctx, docs)
		}
		return err
	})
	if err != nil {
		log.Error("[Ingest] Run failed", "err", err, "duration", time.Since(start))
		return report, err
	}

	log.Info("[Ingest] Run finished",
		"ingested", report.Ingested,
		"empty", report.Empty,
		"skipped", len(report.Skipped),
		"duration", time.Since(start),
	)
	return report, nil
}

// Reset clears the graph under the rebuild lease.
func (r *Runner) Reset(ctx context.Context) error {
	return r.locker.WithLease(ctx, leaselock.RebuildKey, r.graph.ResetGraph)
}

// CheckReport is the manifest bookkeeping printed by the ingest command.
type CheckReport struct {
	Documents  int                  `json:"documents"`
	Duplicates []manifest.Duplicate `json:"duplicates"`
	Missing    []common.Document    `json:"missing_text"`
}

// Check reports duplicate titles and documents whose extracted text is not
// on disk.
func Check(docs []common.Document, exists func(path string) bool) CheckReport {
	report := CheckReport{
		Documents:  len(docs),
		Duplicates: manifest.DuplicateTitles(docs),
		Missing:    manifest.MissingText(docs, exists),
	}
	if report.Duplicates == nil {
		report.Duplicates = []manifest.Duplicate{}
	}
	if report.Missing == nil {
		report.Missing = []common.Document{}
	}
	return report
}
