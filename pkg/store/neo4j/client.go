package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/logger"

	neo4jv5 "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphNeo4jStorage implements store.GraphStorage on a Neo4j database.
// Every statement is parameterized; node labels come from a fixed table.
type GraphNeo4jStorage struct {
	driver   neo4jv5.DriverWithContext
	database string
	timeout  time.Duration
}

type NewGraphNeo4jStorageParams struct {
	URI      string
	User     string
	Password string
	Database string
	// Timeout bounds connecting and every transaction. Defaults to 10s.
	Timeout     time.Duration
	MaxPoolSize int
}

// NewGraphNeo4jStorage connects to Neo4j, verifies connectivity and creates
// the uniqueness constraints the merge statements rely on.
func NewGraphNeo4jStorage(ctx context.Context, params NewGraphNeo4jStorageParams) (*GraphNeo4jStorage, error) {
	uri := strings.TrimSpace(params.URI)
	if uri == "" {
		return nil, fmt.Errorf("neo4j: uri required")
	}
	user := params.User
	if user == "" {
		user = "neo4j"
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := params.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4jv5.NewDriverWithContext(uri, neo4jv5.BasicAuth(user, params.Password, ""), func(cfg *neo4jv5.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	s := NewGraphNeo4jStorageWithDriver(driver, params.Database, timeout)
	s.ensureSchema(ctx)
	return s, nil
}

// NewGraphNeo4jStorageWithDriver wraps an existing driver. The caller keeps
// ownership of schema setup.
func NewGraphNeo4jStorageWithDriver(driver neo4jv5.DriverWithContext, database string, timeout time.Duration) *GraphNeo4jStorage {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphNeo4jStorage{driver: driver, database: database, timeout: timeout}
}

func (s *GraphNeo4jStorage) ensureSchema(ctx context.Context) {
	session := s.session(ctx, neo4jv5.AccessModeWrite)
	defer session.Close(ctx)

	for _, q := range schemaStatements {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			logger.Warn("[Neo4j] Schema init failed (continuing)", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *GraphNeo4jStorage) session(ctx context.Context, mode neo4jv5.AccessMode) neo4jv5.SessionWithContext {
	return s.driver.NewSession(ctx, neo4jv5.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *GraphNeo4jStorage) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}
