package graph

import (
	"context"
	"errors"
	"time"

	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader"
	"github.com/spacebio/knowledge-engine/backend/pkg/metrics"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
)

const (
	DefaultLimit       = 5
	DefaultMaxKeywords = 10
	DefaultTopN        = 10
)

// ResultCache memoizes retrieval results. Invalidate must drop every entry;
// it is called whenever the graph is reset.
type ResultCache interface {
	Get(ctx context.Context, pattern store.Pattern) ([]common.Publication, bool)
	Set(ctx context.Context, pattern store.Pattern, pubs []common.Publication)
	Invalidate(ctx context.Context) error
}

// GraphClient materializes publications into the graph store and answers
// keyword, analytics and subgraph queries over it. It holds no mutable state
// of its own; all collaborators are injected.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	store      store.GraphStorage
	recognizer nlp.Recognizer
	tagger     nlp.Tagger
	loader     loader.TextLoader
	synonyms   *Synonyms
	cache      ResultCache
	metrics    *metrics.Metrics

	parallelDocuments int
	maxRetries        int
	backoff           util.Backoff
	storeTimeout      time.Duration
	maxKeywords       int
	defaultLimit      int
}

// NewGraphClientParams configures a GraphClient.
//
// Store is required. Recognizer is required for ingestion, Tagger for
// keyword extraction. Loader resolves document text when a document does
// not carry it inline. Cache and Metrics are optional.
//
// ParallelDocuments controls how many documents are ingested at once and
// defaults to 1. StoreTimeout bounds each store call; store writes are
// retried MaxRetries times.
type NewGraphClientParams struct {
	Store      store.GraphStorage
	Recognizer nlp.Recognizer
	Tagger     nlp.Tagger
	Loader     loader.TextLoader
	Synonyms   *Synonyms
	Cache      ResultCache
	Metrics    *metrics.Metrics

	ParallelDocuments int
	MaxRetries        int
	RetryBackoff      util.Backoff
	StoreTimeout      time.Duration
	MaxKeywords       int
	DefaultLimit      int
}

// NewGraphClient creates a GraphClient.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Store:      memory.NewGraphMemoryStorage(),
//		Recognizer: pipeline,
//		Tagger:     pipeline,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := client.Rebuild(ctx, docs)
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Store == nil {
		return nil, errors.New("graph: store is required")
	}
	g := &GraphClient{
		store:             params.Store,
		recognizer:        params.Recognizer,
		tagger:            params.Tagger,
		loader:            params.Loader,
		synonyms:          params.Synonyms,
		cache:             params.Cache,
		metrics:           params.Metrics,
		parallelDocuments: params.ParallelDocuments,
		maxRetries:        params.MaxRetries,
		backoff:           params.RetryBackoff,
		storeTimeout:      params.StoreTimeout,
		maxKeywords:       params.MaxKeywords,
		defaultLimit:      params.DefaultLimit,
	}
	if g.synonyms == nil {
		g.synonyms = DefaultSynonyms()
	}
	if g.parallelDocuments <= 0 {
		g.parallelDocuments = 1
	}
	if g.maxRetries <= 0 {
		g.maxRetries = 3
	}
	if g.backoff == nil {
		g.backoff = util.ExponentialBackoff(200*time.Millisecond, 5*time.Second)
	}
	if g.storeTimeout <= 0 {
		g.storeTimeout = 30 * time.Second
	}
	if g.maxKeywords <= 0 {
		g.maxKeywords = DefaultMaxKeywords
	}
	if g.defaultLimit <= 0 {
		g.defaultLimit = DefaultLimit
	}
	return g, nil
}

// storeCall runs fn under the store timeout. Writes pass retry=true; they
// are idempotent so a failed attempt can be repeated.
func (g *GraphClient) storeCall(ctx context.Context, retry bool, fn func(ctx context.Context) error) error {
	attempt := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
		defer cancel()
		return fn(cctx)
	}
	if !retry {
		return attempt(ctx)
	}
	return util.RetryErrWithBackoff(ctx, g.maxRetries, g.backoff, attempt)
}
