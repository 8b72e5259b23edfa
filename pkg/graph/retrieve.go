package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/metrics"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
)

// Pattern turns keywords into a store pattern: one clause per keyword, each
// clause holding the keyword and the terms it was expanded from. At most
// maxKeywords keywords are kept.
func (g *GraphClient) Pattern(keywords KeywordSet, limit int) store.Pattern {
	if limit <= 0 {
		limit = g.defaultLimit
	}
	words := keywords.Sorted()
	if capped := capKeywords(words, g.maxKeywords); len(capped) < len(words) {
		logger.Debug("[Graph] Capped keywords", "kept", len(capped), "dropped", len(words)-len(capped))
		words = capped
	}
	clauses := make([][]string, 0, len(words))
	for _, kw := range words {
		clauses = append(clauses, g.synonyms.Alternatives(kw))
	}
	return store.Pattern{Clauses: clauses, Limit: limit}
}

// MatchPublications returns the publications that mention, for every
// keyword, some entity whose name contains it, ordered by title. An empty
// keyword set returns nothing without querying the store. A store failure
// yields an empty result together with the error; callers may treat it as no
// match.
func (g *GraphClient) MatchPublications(ctx context.Context, keywords KeywordSet, limit int) ([]common.Publication, error) {
	start := time.Now()
	if keywords.Len() == 0 {
		g.metrics.Retrieval(metrics.RetrievalNoKeywords, 0)
		return []common.Publication{}, nil
	}
	pattern := g.Pattern(keywords, limit)

	if g.cache != nil {
		pubs, ok := g.cache.Get(ctx, pattern)
		g.metrics.CacheLookup(ok)
		if ok {
			g.metrics.Retrieval(outcome(pubs), time.Since(start))
			return pubs, nil
		}
	}

	var pubs []common.Publication
	err := g.storeCall(ctx, false, func(ctx context.Context) error {
		var err error
		pubs, err = g.store.FindPublications(ctx, pattern)
		return err
	})
	if err != nil {
		g.metrics.StoreError("find_publications")
		g.metrics.Retrieval(metrics.RetrievalError, time.Since(start))
		logger.Error("[Graph] Retrieval failed", "keywords", keywords.Sorted(), "err", err)
		return []common.Publication{}, fmt.Errorf("find publications: %w", err)
	}
	if pubs == nil {
		pubs = []common.Publication{}
	}
	if g.cache != nil {
		g.cache.Set(ctx, pattern, pubs)
	}
	g.metrics.Retrieval(outcome(pubs), time.Since(start))
	return pubs, nil
}

// FindPublications is MatchPublications reduced to distinct titles.
func (g *GraphClient) FindPublications(ctx context.Context, keywords KeywordSet, limit int) ([]string, error) {
	pubs, err := g.MatchPublications(ctx, keywords, limit)
	return Titles(pubs), err
}

// Titles lists the distinct titles of pubs in order.
func Titles(pubs []common.Publication) []string {
	titles := make([]string, 0, len(pubs))
	seen := make(map[string]struct{}, len(pubs))
	for _, p := range pubs {
		if _, ok := seen[p.Title]; ok {
			continue
		}
		seen[p.Title] = struct{}{}
		titles = append(titles, p.Title)
	}
	return titles
}

func outcome(pubs []common.Publication) string {
	if len(pubs) == 0 {
		return metrics.RetrievalMiss
	}
	return metrics.RetrievalHit
}

// SearchPublications extracts keywords from query and retrieves matching
// publications.
func (g *GraphClient) SearchPublications(ctx context.Context, query string, limit int) (KeywordSet, []common.Publication, error) {
	keywords, err := g.ExtractKeywords(ctx, query)
	if err != nil {
		return nil, []common.Publication{}, err
	}
	pubs, err := g.MatchPublications(ctx, keywords, limit)
	return keywords, pubs, err
}

// Search extracts keywords from query and retrieves matching titles.
func (g *GraphClient) Search(ctx context.Context, query string, limit int) (KeywordSet, []string, error) {
	keywords, pubs, err := g.SearchPublications(ctx, query, limit)
	return keywords, Titles(pubs), err
}
