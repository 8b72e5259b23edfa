package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
)

// Pattern is a conjunctive retrieval pattern. A publication matches when,
// for every clause, it mentions at least one entity whose name key contains
// one of the clause's alternatives as a substring. Alternatives are expected
// to be lower case.
type Pattern struct {
	Clauses [][]string
	Limit   int
}

// GraphStorage persists the publication/entity graph and answers the read
// queries served by the API. Implementations must make SaveDocument
// idempotent: publications, entities and mention edges are merged by key.
type GraphStorage interface {
	// SaveDocument upserts the publication, its entities and the mention
	// edges between them as one unit of work.
	SaveDocument(ctx context.Context, pub common.Publication, entities []common.Entity) error
	// DeleteAll removes every node and edge.
	DeleteAll(ctx context.Context) error

	// FindPublications returns matching publications ordered by title, then
	// key, at most pattern.Limit of them.
	FindPublications(ctx context.Context, pattern Pattern) ([]common.Publication, error)
	// TopEntities ranks entities carrying tag by the number of publications
	// mentioning them, descending. Ties are broken by name.
	TopEntities(ctx context.Context, tag common.Tag, n int) ([]common.EntityCount, error)
	// PublicationSubgraph returns common.ErrNotFound when key is unknown.
	PublicationSubgraph(ctx context.Context, key string) (common.Subgraph, error)
	// PublicationKeyByDOI resolves a DOI, compared case-insensitively, to a
	// publication key. When several publications share the DOI the smallest
	// key wins. Unknown DOIs yield common.ErrNotFound.
	PublicationKeyByDOI(ctx context.Context, doi string) (string, error)
	Stats(ctx context.Context) (common.GraphStats, error)

	Close(ctx context.Context) error
}

// Unavailable wraps a backend error so callers can detect it with
// errors.Is(err, common.ErrStoreUnavailable). Context errors and NotFound
// are returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrStoreUnavailable, err)
}

// GroupByCategory splits entities by category in the order of
// common.Categories, dropping unknown categories and duplicate identities.
func GroupByCategory(entities []common.Entity) map[common.Category][]common.Entity {
	out := make(map[common.Category][]common.Entity)
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if !e.Category.Valid() || e.NameKey == "" {
			continue
		}
		if _, ok := seen[e.ID()]; ok {
			continue
		}
		seen[e.ID()] = struct{}{}
		out[e.Category] = append(out[e.Category], e)
	}
	return out
}
