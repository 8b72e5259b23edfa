package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
)

func (g *GraphClient) topEntities(ctx context.Context, tag common.Tag, n int) ([]common.EntityCount, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	var out []common.EntityCount
	err := g.storeCall(ctx, false, func(ctx context.Context) error {
		var err error
		out, err = g.store.TopEntities(ctx, tag, n)
		return err
	})
	if err != nil {
		g.metrics.StoreError("top_entities")
		return nil, fmt.Errorf("top %s: %w", tag, err)
	}
	if out == nil {
		out = []common.EntityCount{}
	}
	return out, nil
}

// TopOrganizations ranks organizations by the number of publications
// mentioning them.
func (g *GraphClient) TopOrganizations(ctx context.Context, n int) ([]common.EntityCount, error) {
	return g.topEntities(ctx, common.TagOrganization, n)
}

// TopAuthors ranks people by the number of publications mentioning them.
func (g *GraphClient) TopAuthors(ctx context.Context, n int) ([]common.EntityCount, error) {
	return g.topEntities(ctx, common.TagAuthor, n)
}

func (g *GraphClient) TopLocations(ctx context.Context, n int) ([]common.EntityCount, error) {
	return g.topEntities(ctx, common.TagLocation, n)
}

// SubgraphForPublication returns the publication node with its mentioned
// entities. id is a publication key or a DOI, with or without a resolver
// prefix. Unknown publications yield common.ErrNotFound.
func (g *GraphClient) SubgraphForPublication(ctx context.Context, id string) (common.Subgraph, error) {
	id = strings.TrimSpace(id)
	if IsPublicationKey(id) {
		sg, err := g.subgraph(ctx, id)
		if !errors.Is(err, common.ErrNotFound) {
			return sg, err
		}
	}
	return g.SubgraphForDOI(ctx, id)
}

// SubgraphForDOI resolves doi to its publication and returns the subgraph.
func (g *GraphClient) SubgraphForDOI(ctx context.Context, doi string) (common.Subgraph, error) {
	doi = NormalizeDOI(doi)
	if doi == "" {
		return common.Subgraph{}, fmt.Errorf("subgraph: empty doi: %w", common.ErrNotFound)
	}
	var key string
	err := g.storeCall(ctx, false, func(ctx context.Context) error {
		var err error
		key, err = g.store.PublicationKeyByDOI(ctx, doi)
		return err
	})
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			g.metrics.StoreError("publication_by_doi")
		}
		return common.Subgraph{}, fmt.Errorf("subgraph %s: %w", doi, err)
	}
	return g.subgraph(ctx, key)
}

func (g *GraphClient) subgraph(ctx context.Context, key string) (common.Subgraph, error) {
	var sg common.Subgraph
	err := g.storeCall(ctx, false, func(ctx context.Context) error {
		var err error
		sg, err = g.store.PublicationSubgraph(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			g.metrics.StoreError("publication_subgraph")
		}
		return common.Subgraph{}, fmt.Errorf("subgraph %s: %w", key, err)
	}
	return sg, nil
}

func (g *GraphClient) Stats(ctx context.Context) (common.GraphStats, error) {
	var stats common.GraphStats
	err := g.storeCall(ctx, false, func(ctx context.Context) error {
		var err error
		stats, err = g.store.Stats(ctx)
		return err
	})
	if err != nil {
		g.metrics.StoreError("stats")
		return common.GraphStats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
