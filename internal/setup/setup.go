// Package setup turns a Config into the wired services shared by the
// binaries.
package setup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spacebio/knowledge-engine/backend/internal/config"
	"github.com/spacebio/knowledge-engine/backend/pkg/ai"
	oai "github.com/spacebio/knowledge-engine/backend/pkg/ai/ollama"
	gai "github.com/spacebio/knowledge-engine/backend/pkg/ai/openai"
	"github.com/spacebio/knowledge-engine/backend/pkg/cache"
	"github.com/spacebio/knowledge-engine/backend/pkg/graph"
	"github.com/spacebio/knowledge-engine/backend/pkg/leaselock"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader"
	ioloader "github.com/spacebio/knowledge-engine/backend/pkg/loader/io"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader/pdf"
	s3loader "github.com/spacebio/knowledge-engine/backend/pkg/loader/s3"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader/web"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/metrics"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp/llm"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp/prose"
	"github.com/spacebio/knowledge-engine/backend/pkg/query"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
	"github.com/spacebio/knowledge-engine/backend/pkg/store/memory"
	"github.com/spacebio/knowledge-engine/backend/pkg/store/neo4j"
	pgxstore "github.com/spacebio/knowledge-engine/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Services are the long lived collaborators of a process. Query is nil when
// no AI adapter is configured.
type Services struct {
	Config   config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    store.GraphStorage
	AI       ai.GraphAIClient
	Graph    *graph.GraphClient
	Query    *query.QueryClient
	Locker   leaselock.Locker
	Files    *ioloader.IOTextLoader

	closers []func(ctx context.Context)
}

// New connects every backend named in cfg. On error, whatever was opened
// so far is closed again.
func New(ctx context.Context, cfg config.Config) (_ *Services, err error) {
	s := &Services{Config: cfg}
	defer func() {
		if err != nil {
			s.Close(context.WithoutCancel(ctx))
		}
	}()

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.Metrics = metrics.New(s.Registry)

	var pool *pgxpool.Pool
	if cfg.Store.DatabaseURL != "" {
		pool, err = openPool(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) { pool.Close() })
	}

	s.Store, err = openStore(ctx, cfg.Store, pool)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func(ctx context.Context) {
		if err := s.Store.Close(ctx); err != nil {
			logger.Warn("[Setup] Failed to close graph store", "err", err)
		}
	})

	if pool != nil {
		s.Locker = leaselock.New(pool, leaselock.Options{TTL: cfg.Ingest.LockTTL, Owner: hostname()})
	} else {
		s.Locker = leaselock.NewLocalLocker()
	}

	s.AI, err = openAI(cfg.AI)
	if err != nil {
		return nil, err
	}

	pipeline, err := openNLP(cfg.NLP, s.AI)
	if err != nil {
		return nil, err
	}

	s.Files = ioloader.NewIOTextLoader(cfg.Ingest.BaseDir)
	textLoader, err := openLoader(ctx, cfg, s.Files)
	if err != nil {
		return nil, err
	}

	synonyms, err := loadSynonyms(cfg.Ingest.SynonymsFile)
	if err != nil {
		return nil, err
	}

	var resultCache graph.ResultCache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisResultCache(ctx, cache.NewRedisResultCacheParams{
			URL:    cfg.Redis.URL,
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL,
		})
		if err != nil {
			// The cache is an optimization; retrieval works without it.
			logger.Warn("[Setup] Redis unavailable, retrieval cache disabled", "err", err)
		} else {
			resultCache = rc
			s.closers = append(s.closers, func(context.Context) { _ = rc.Close() })
		}
	}

	s.Graph, err = graph.NewGraphClient(graph.NewGraphClientParams{
		Store:             s.Store,
		Recognizer:        pipeline,
		Tagger:            pipeline,
		Loader:            textLoader,
		Synonyms:          synonyms,
		Cache:             resultCache,
		Metrics:           s.Metrics,
		ParallelDocuments: cfg.Ingest.ParallelDocuments,
		MaxRetries:        cfg.Ingest.MaxRetries,
		StoreTimeout:      cfg.Store.Timeout,
		MaxKeywords:       cfg.Ingest.MaxKeywords,
		DefaultLimit:      cfg.Ingest.DefaultLimit,
	})
	if err != nil {
		return nil, err
	}

	if s.AI != nil {
		s.Query = query.NewQueryClient(s.AI, s.Graph, s.Metrics, query.WithMaxSources(cfg.Ingest.MaxSources))
	}

	logger.Info("[Setup] Services ready",
		"store", cfg.Store.Backend,
		"nlp", cfg.NLP.Backend,
		"ai", cfg.AI.Adapter,
		"cache", resultCache != nil,
	)
	return s, nil
}

// Close releases connections in reverse order of opening.
func (s *Services) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
	s.closers = nil
}

func openPool(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		if err := pgxstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, pool *pgxpool.Pool) (store.GraphStorage, error) {
	switch cfg.Backend {
	case config.StoreNeo4j:
		return neo4j.NewGraphNeo4jStorage(ctx, neo4j.NewGraphNeo4jStorageParams{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
			Timeout:  cfg.Timeout,
		})
	case config.StorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres store needs a database connection")
		}
		// The pool is closed by its own closer.
		return pgxstore.NewGraphDBStorageWithConnection(pool, pgxstore.WithTimeout(cfg.Timeout)), nil
	default:
		return memory.NewGraphMemoryStorage(), nil
	}
}

func openAI(cfg config.AIConfig) (ai.GraphAIClient, error) {
	switch cfg.Adapter {
	case config.AINone:
		return nil, nil
	case config.AIOllama:
		return oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ChatModel:             cfg.ChatModel,
			ExtractionModel:       cfg.ExtractionModel,
			BaseURL:               cfg.URL,
			ApiKey:                cfg.Key,
			MaxConcurrentRequests: int64(cfg.ParallelRequests),
		})
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ChatModel:       cfg.ChatModel,
			ExtractionModel: cfg.ExtractionModel,
			URL:             cfg.URL,
			Key:             cfg.Key,
			MaxRetries:      cfg.MaxRetries,
		})
	}
}

// openNLP always tags with prose; the recognizer is prose or the LLM.
func openNLP(cfg config.NLPConfig, aiClient ai.GraphAIClient) (nlp.Pipeline, error) {
	p, err := prose.NewProsePipeline()
	if err != nil {
		return nil, fmt.Errorf("init prose pipeline: %w", err)
	}
	if cfg.Backend != config.NLPLLM {
		return p, nil
	}
	if aiClient == nil {
		return nil, fmt.Errorf("llm recognizer needs an ai client")
	}
	rec := llm.NewLLMRecognizer(llm.NewLLMRecognizerParams{
		Client:      aiClient,
		ChunkTokens: cfg.ChunkTokens,
		Parallel:    cfg.Parallel,
	})
	return nlp.Combined{Recognizer: rec, Tagger: p}, nil
}

func openLoader(ctx context.Context, cfg config.Config, files *ioloader.IOTextLoader) (loader.TextLoader, error) {
	router := &loader.Router{
		Local: files,
		PDF:   pdf.NewPDFTextLoader(files, cfg.Ingest.PDFTimeout),
		Web: web.NewWebTextLoader(web.NewWebTextLoaderParams{
			Timeout:    cfg.Ingest.WebTimeout,
			PDFTimeout: cfg.Ingest.PDFTimeout,
		}),
	}
	if cfg.S3.Enabled() {
		s3l, err := s3loader.NewS3TextLoader(ctx, s3loader.NewS3TextLoaderParams{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 loader: %w", err)
		}
		router.S3 = s3l
	}
	return loader.NewCache(router), nil
}

// loadSynonyms merges a JSON object of term -> expansions into the built in
// table.
func loadSynonyms(path string) (*graph.Synonyms, error) {
	if path == "" {
		return graph.DefaultSynonyms(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}
	var table map[string][]string
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse synonyms %s: %w", path, err)
	}
	return graph.DefaultSynonyms().Merge(table), nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "knowledge-engine"
	}
	return h
}
