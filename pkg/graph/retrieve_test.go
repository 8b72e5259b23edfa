package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
	"github.com/spacebio/knowledge-engine/backend/pkg/store/memory"
)

func ingested(t *testing.T, s store.GraphStorage) *GraphClient {
	t.Helper()
	g := newTestClient(t, s, nil)
	if _, err := g.IngestAll(context.Background(), testDocs()); err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	return g
}

func TestFindPublicationsBySynonym(t *testing.T) {
	g := ingested(t, nil)
	titles, err := g.FindPublications(context.Background(), NewKeywordSet("rodent"), 0)
	if err != nil {
		t.Fatalf("FindPublications: %v", err)
	}
	if !slices.Equal(titles, []string{"Rodent Habitats"}) {
		t.Fatalf("got %v", titles)
	}
}

func TestFindPublicationsIsConjunctive(t *testing.T) {
	g := ingested(t, nil)
	ctx := context.Background()

	titles, _ := g.FindPublications(ctx, NewKeywordSet("nasa"), 0)
	if !slices.Equal(titles, []string{"Bone Loss in Orbit", "Rodent Habitats"}) {
		t.Fatalf("got %v", titles)
	}
	titles, _ = g.FindPublications(ctx, NewKeywordSet("nasa", "houston"), 0)
	if !slices.Equal(titles, []string{"Bone Loss in Orbit"}) {
		t.Fatalf("got %v", titles)
	}
	titles, _ = g.FindPublications(ctx, NewKeywordSet("houston", "kennedy"), 0)
	if len(titles) != 0 {
		t.Fatalf("expected no match, got %v", titles)
	}
}

func TestFindPublicationsLimit(t *testing.T) {
	g := newTestClient(t, nil, nil)
	ctx := context.Background()
	var docs []common.Document
	for i := range 8 {
		docs = append(docs, common.Document{Title: fmt.Sprintf("Paper %d", i), Text: "NASA"})
	}
	if _, err := g.IngestAll(ctx, docs); err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	titles, _ := g.FindPublications(ctx, NewKeywordSet("nasa"), 0)
	if len(titles) != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, len(titles))
	}
	titles, _ = g.FindPublications(ctx, NewKeywordSet("nasa"), 2)
	if !slices.Equal(titles, []string{"Paper 0", "Paper 1"}) {
		t.Fatalf("got %v", titles)
	}
}

func TestFindPublicationsEmptyKeywordsSkipsStore(t *testing.T) {
	cs := &countingStore{GraphStorage: memory.NewGraphMemoryStorage()}
	g := newTestClient(t, cs, nil)
	titles, err := g.FindPublications(context.Background(), NewKeywordSet(), 5)
	if err != nil || len(titles) != 0 {
		t.Fatalf("got %v, %v", titles, err)
	}
	if cs.finds != 0 {
		t.Fatalf("store was queried %d times", cs.finds)
	}
}

func TestFindPublicationsStoreFailure(t *testing.T) {
	cs := &countingStore{
		GraphStorage: memory.NewGraphMemoryStorage(),
		findErr:      store.Unavailable("find", errBackend),
	}
	g := newTestClient(t, cs, nil)
	titles, err := g.FindPublications(context.Background(), NewKeywordSet("nasa"), 5)
	if !errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if titles == nil || len(titles) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", titles)
	}
}

func TestPatternCapsKeywords(t *testing.T) {
	g := newTestClient(t, nil, nil)
	kw := NewKeywordSet()
	for i := range 15 {
		kw.Add(fmt.Sprintf("keyword%02d", i))
	}
	p := g.Pattern(kw, 0)
	if len(p.Clauses) != DefaultMaxKeywords {
		t.Fatalf("expected %d clauses, got %d", DefaultMaxKeywords, len(p.Clauses))
	}
	if p.Limit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", p.Limit)
	}
}

type mapCache struct {
	entries     map[string][]common.Publication
	invalidated int
}

func (m *mapCache) key(p store.Pattern) string { return fmt.Sprint(p.Clauses, p.Limit) }

func (m *mapCache) Get(_ context.Context, p store.Pattern) ([]common.Publication, bool) {
	v, ok := m.entries[m.key(p)]
	return v, ok
}

func (m *mapCache) Set(_ context.Context, p store.Pattern, pubs []common.Publication) {
	m.entries[m.key(p)] = pubs
}

func (m *mapCache) Invalidate(context.Context) error {
	m.invalidated++
	clear(m.entries)
	return nil
}

func TestFindPublicationsUsesCache(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{GraphStorage: memory.NewGraphMemoryStorage()}
	cache := &mapCache{entries: map[string][]common.Publication{}}
	p := newTestPipeline()
	g, err := NewGraphClient(NewGraphClientParams{Store: cs, Recognizer: p, Tagger: p, Cache: cache})
	if err != nil {
		t.Fatalf("NewGraphClient: %v", err)
	}
	if _, err := g.IngestAll(ctx, testDocs()); err != nil {
		t.Fatalf("IngestAll: %v", err)
	}

	for range 3 {
		titles, err := g.FindPublications(ctx, NewKeywordSet("houston"), 5)
		if err != nil || len(titles) != 1 {
			t.Fatalf("got %v, %v", titles, err)
		}
	}
	if cs.finds != 1 {
		t.Fatalf("expected one store query, got %d", cs.finds)
	}

	if err := g.ResetGraph(ctx); err != nil {
		t.Fatalf("ResetGraph: %v", err)
	}
	if cache.invalidated == 0 {
		t.Fatalf("reset did not invalidate the cache")
	}
	titles, _ := g.FindPublications(ctx, NewKeywordSet("houston"), 5)
	if len(titles) != 0 {
		t.Fatalf("stale result after reset: %v", titles)
	}
}

func TestSearch(t *testing.T) {
	g := ingested(t, nil)
	kw, titles, err := g.Search(context.Background(), "Effects of microgravity on mice", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !kw.Has("rodent") {
		t.Fatalf("keywords %v", kw.Sorted())
	}
	// "effect" and "microgravity" match no entity
	if len(titles) != 0 {
		t.Fatalf("expected no titles, got %v", titles)
	}
}

func TestSearchPublicationsCarriesKeys(t *testing.T) {
	g := ingested(t, nil)
	_, pubs, err := g.SearchPublications(context.Background(), "nasa", 5)
	if err != nil {
		t.Fatalf("SearchPublications: %v", err)
	}
	if len(pubs) != 2 {
		t.Fatalf("expected 2 publications, got %+v", pubs)
	}
	want := PublicationKey("Bone Loss in Orbit", "https://example.org/1")
	if pubs[0].Title != "Bone Loss in Orbit" || pubs[0].Key != want {
		t.Fatalf("expected key %s first, got %+v", want, pubs[0])
	}
}

func TestTitlesAreDistinct(t *testing.T) {
	got := Titles([]common.Publication{{Key: "a", Title: "Same"}, {Key: "b", Title: "Same"}, {Key: "c", Title: "Other"}})
	if !slices.Equal(got, []string{"Same", "Other"}) {
		t.Fatalf("got %v", got)
	}
}
