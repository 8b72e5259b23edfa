// Package config gathers the environment driven settings of the server,
// worker and ingest binaries.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spacebio/knowledge-engine/backend/internal/util"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreNeo4j    = "neo4j"
	StorePostgres = "postgres"
)

// NLP backends.
const (
	NLPProse = "prose"
	NLPLLM   = "llm"
)

// AI adapters. AINone disables chat and LLM extraction.
const (
	AIOpenAI = "openai"
	AIOllama = "ollama"
	AINone   = "none"
)

type ServerConfig struct {
	Port         string
	BodyLimit    string
	AllowOrigins []string
}

type StoreConfig struct {
	Backend       string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	// DatabaseURL is used by the postgres backend and by the rebuild lease
	// lock. It may be set while the graph lives in Neo4j.
	DatabaseURL string
	AutoMigrate bool
	Timeout     time.Duration
}

type NLPConfig struct {
	Backend     string
	ChunkTokens int
	Parallel    int
}

type AIConfig struct {
	Adapter          string
	ChatModel        string
	ExtractionModel  string
	URL              string
	Key              string
	MaxRetries       int
	ParallelRequests int
}

type QueueConfig struct {
	// Enabled makes the server publish ingest jobs for the worker instead
	// of running them itself.
	Enabled  bool
	User     string
	Password string
	Host     string
	Port     string
	// MaxRetries is how often a failed job goes through the retry queue
	// before it is dead-lettered.
	MaxRetries int
}

// URL builds the AMQP connection string.
func (q QueueConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(q.User, q.Password),
		Host:   q.Host + ":" + q.Port,
		Path:   "/",
	}
	return u.String()
}

type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether s3:// locations can be resolved.
func (s S3Config) Enabled() bool { return s.Bucket != "" || s.Endpoint != "" }

type RedisConfig struct {
	URL    string
	Prefix string
	TTL    time.Duration
}

type AuthConfig struct {
	JWKSURL      string
	MasterAPIKey string
}

type IngestConfig struct {
	Manifest          string
	BaseDir           string
	ParallelDocuments int
	MaxRetries        int
	WebTimeout        time.Duration
	PDFTimeout        time.Duration
	LockTTL           time.Duration
	MaxKeywords       int
	DefaultLimit      int
	MaxSources        int
	SynonymsFile      string
}

type Config struct {
	Debug  bool
	Server ServerConfig
	Store  StoreConfig
	NLP    NLPConfig
	AI     AIConfig
	Queue  QueueConfig
	S3     S3Config
	Redis  RedisConfig
	Auth   AuthConfig
	Ingest IngestConfig
}

// Load reads the configuration from the environment. Call util.LoadEnv
// first to pick up a .env file.
func Load() (Config, error) {
	cfg := Config{
		Debug: util.GetEnvBool("DEBUG", false),
		Server: ServerConfig{
			Port:         util.GetEnvString("PORT", "8080"),
			BodyLimit:    util.GetEnvString("BODY_LIMIT", "2M"),
			AllowOrigins: util.GetEnvList("CORS_ALLOW_ORIGINS"),
		},
		Store: StoreConfig{
			Backend:       util.GetEnvString("GRAPH_STORE", StoreMemory),
			Neo4jURI:      util.GetEnv("NEO4J_URI"),
			Neo4jUser:     util.GetEnvString("NEO4J_USER", "neo4j"),
			Neo4jPassword: util.GetEnv("NEO4J_PASSWORD"),
			Neo4jDatabase: util.GetEnv("NEO4J_DATABASE"),
			DatabaseURL:   util.GetEnv("DATABASE_URL"),
			AutoMigrate:   util.GetEnvBool("DATABASE_AUTO_MIGRATE", true),
			Timeout:       util.GetEnvDuration("STORE_TIMEOUT", 30*time.Second),
		},
		NLP: NLPConfig{
			Backend:     util.GetEnvString("NLP_BACKEND", NLPProse),
			ChunkTokens: util.GetEnvInt("NLP_CHUNK_TOKENS", 2000),
			Parallel:    util.GetEnvInt("NLP_PARALLEL", 4),
		},
		AI: AIConfig{
			Adapter:          util.GetEnvString("AI_ADAPTER", AIOpenAI),
			ChatModel:        util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel:  util.GetEnv("AI_EXTRACT_MODEL"),
			URL:              util.GetEnv("AI_CHAT_URL"),
			Key:              util.GetEnv("AI_CHAT_KEY"),
			MaxRetries:       util.GetEnvInt("AI_MAX_RETRIES", -1),
			ParallelRequests: util.GetEnvInt("AI_PARALLEL_REQ", 4),
		},
		Queue: QueueConfig{
			Enabled:    util.GetEnvBool("QUEUE_ENABLED", false),
			User:       util.GetEnvString("RABBITMQ_USER", "guest"),
			Password:   util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
			Host:       util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:       util.GetEnvString("RABBITMQ_PORT", "5672"),
			MaxRetries: util.GetEnvInt("QUEUE_MAX_RETRIES", 5),
		},
		S3: S3Config{
			Bucket:    util.GetEnv("S3_BUCKET"),
			Endpoint:  util.GetEnv("S3_ENDPOINT"),
			Region:    util.GetEnvString("S3_REGION", "us-east-1"),
			AccessKey: util.GetEnv("S3_ACCESS_KEY"),
			SecretKey: util.GetEnv("S3_SECRET_KEY"),
		},
		Redis: RedisConfig{
			URL:    util.GetEnv("REDIS_URL"),
			Prefix: util.GetEnvString("REDIS_PREFIX", "kg:retrieval"),
			TTL:    util.GetEnvDuration("REDIS_TTL", 10*time.Minute),
		},
		Auth: AuthConfig{
			MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
		},
		Ingest: IngestConfig{
			Manifest:          util.GetEnvString("INGEST_MANIFEST", "publications.csv"),
			BaseDir:           util.GetEnv("INGEST_BASE_DIR"),
			ParallelDocuments: util.GetEnvInt("INGEST_PARALLEL", 4),
			MaxRetries:        util.GetEnvInt("INGEST_MAX_RETRIES", 3),
			WebTimeout:        util.GetEnvDuration("INGEST_WEB_TIMEOUT", 30*time.Second),
			PDFTimeout:        util.GetEnvDuration("INGEST_PDF_TIMEOUT", 60*time.Second),
			LockTTL:           util.GetEnvDuration("INGEST_LOCK_TTL", 5*time.Minute),
			MaxKeywords:       util.GetEnvInt("RETRIEVAL_MAX_KEYWORDS", 10),
			DefaultLimit:      util.GetEnvInt("RETRIEVAL_LIMIT", 5),
			MaxSources:        util.GetEnvInt("CHAT_MAX_SOURCES", 5),
			SynonymsFile:      util.GetEnv("SYNONYMS_FILE"),
		},
	}
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		cfg.Auth.JWKSURL = authURL + "/jwks"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreNeo4j:
		if c.Store.Neo4jURI == "" {
			return fmt.Errorf("config: NEO4J_URI is required for the %s store", StoreNeo4j)
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the %s store", StorePostgres)
		}
	default:
		return fmt.Errorf("config: unknown GRAPH_STORE %q", c.Store.Backend)
	}

	switch c.AI.Adapter {
	case AIOpenAI, AIOllama, AINone:
	default:
		return fmt.Errorf("config: unknown AI_ADAPTER %q", c.AI.Adapter)
	}

	switch c.NLP.Backend {
	case NLPProse:
	case NLPLLM:
		if c.AI.Adapter == AINone {
			return fmt.Errorf("config: NLP_BACKEND=%s needs an AI_ADAPTER", NLPLLM)
		}
	default:
		return fmt.Errorf("config: unknown NLP_BACKEND %q", c.NLP.Backend)
	}
	return nil
}
