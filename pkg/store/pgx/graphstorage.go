package pgx

import (
	"context"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.GraphStorage on PostgreSQL. Publications,
// entities and mentions live in three tables; uniqueness constraints carry
// the merge semantics.
type GraphDBStorage struct {
	conn    pgxIConn
	timeout time.Duration
	closer  func()
}

type GraphDBStorageOption func(*GraphDBStorage)

// WithTimeout bounds every statement issued by the storage.
func WithTimeout(d time.Duration) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCloser registers a function run by Close, usually pool.Close.
func WithCloser(fn func()) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.closer = fn
	}
}

// NewGraphDBStorageWithConnection wraps an existing pool or connection. The
// schema is expected to be migrated already, see Migrate.
func NewGraphDBStorageWithConnection(conn pgxIConn, opts ...GraphDBStorageOption) *GraphDBStorage {
	s := &GraphDBStorage{
		conn:    conn,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *GraphDBStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GraphDBStorage) Close(context.Context) error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
