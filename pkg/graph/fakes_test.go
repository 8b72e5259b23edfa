package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
	"github.com/spacebio/knowledge-engine/backend/pkg/store/memory"
)

// fakePipeline recognizes every configured phrase found in the text and
// tags words from a fixed lexicon. Unknown words are tagged X.
type fakePipeline struct {
	phrases map[string]string
	lexicon map[string]nlp.Token
	err     error
}

func (f *fakePipeline) Recognize(_ context.Context, text string) ([]nlp.Span, error) {
	if f.err != nil {
		return nil, f.err
	}
	var spans []nlp.Span
	for phrase, label := range f.phrases {
		for range strings.Count(text, phrase) {
			spans = append(spans, nlp.Span{Text: phrase, Label: label})
		}
	}
	return spans, nil
}

func (f *fakePipeline) Tag(_ context.Context, text string) ([]nlp.Token, error) {
	var tokens []nlp.Token
	for _, w := range strings.Fields(text) {
		tok, ok := f.lexicon[w]
		if !ok {
			tok = nlp.Token{Text: w, POS: nlp.POSOther, Lemma: w}
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// countingStore records how often FindPublications was called and can be
// made to fail.
type countingStore struct {
	store.GraphStorage
	finds   int
	findErr error
	saveErr error
}

func (c *countingStore) FindPublications(ctx context.Context, p store.Pattern) ([]common.Publication, error) {
	c.finds++
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.GraphStorage.FindPublications(ctx, p)
}

func (c *countingStore) SaveDocument(ctx context.Context, pub common.Publication, entities []common.Entity) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	return c.GraphStorage.SaveDocument(ctx, pub, entities)
}

var errBackend = errors.New("connection refused")

func newTestPipeline() *fakePipeline {
	return &fakePipeline{
		phrases: map[string]string{
			"NASA":                  "ORG",
			"Mice Facility":         "ORG",
			"Kennedy Space Center":  "ORG",
			"Jane Doe":              "PERSON",
			"Houston":               "GPE",
			"Monday":                "DATE",
			"microgravity research": "EVENT",
		},
		lexicon: map[string]nlp.Token{
			"effects":      {Text: "effects", POS: nlp.POSNoun, Lemma: "effect"},
			"of":           {Text: "of", POS: "ADP", Lemma: "of"},
			"microgravity": {Text: "microgravity", POS: nlp.POSNoun, Lemma: "microgravity"},
			"on":           {Text: "on", POS: "ADP", Lemma: "on"},
			"mice":         {Text: "mice", POS: nlp.POSNoun, Lemma: "mouse"},
			"bone":         {Text: "bone", POS: nlp.POSNoun, Lemma: "bone"},
			"loss":         {Text: "loss", POS: nlp.POSNoun, Lemma: "loss"},
			"in":           {Text: "in", POS: "ADP", Lemma: "in"},
			"nasa":         {Text: "nasa", POS: nlp.POSProperNoun, Lemma: "nasa"},
			"studies":      {Text: "studies", POS: "VERB", Lemma: "study"},
		},
	}
}

func newTestClient(t testing.TB, s store.GraphStorage, p *fakePipeline) *GraphClient {
	t.Helper()
	if s == nil {
		s = memory.NewGraphMemoryStorage()
	}
	if p == nil {
		p = newTestPipeline()
	}
	g, err := NewGraphClient(NewGraphClientParams{
		Store:      s,
		Recognizer: p,
		Tagger:     p,
		MaxRetries: 2,
		RetryBackoff: func(int) time.Duration {
			return time.Millisecond
		},
	})
	if err != nil {
		t.Fatalf("NewGraphClient: %v", err)
	}
	return g
}
