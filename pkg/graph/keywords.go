package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/nlp"
)

// KeywordSet is an unordered set of lower-case keywords.
type KeywordSet map[string]struct{}

func NewKeywordSet(words ...string) KeywordSet {
	k := make(KeywordSet, len(words))
	for _, w := range words {
		k.Add(w)
	}
	return k
}

// Add inserts the lower-cased, space-collapsed word. Words without a letter
// are ignored.
func (k KeywordSet) Add(word string) {
	w := strings.ToLower(util.CollapseWhitespace(word))
	if w == "" || !strings.ContainsFunc(w, unicode.IsLetter) {
		return
	}
	k[w] = struct{}{}
}

func (k KeywordSet) Has(word string) bool {
	_, ok := k[word]
	return ok
}

func (k KeywordSet) Len() int { return len(k) }

// Sorted lists the keywords alphabetically.
func (k KeywordSet) Sorted() []string {
	out := make([]string, 0, len(k))
	for w := range k {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// capKeywords keeps the n longest keywords, ties broken alphabetically.
// Longer keywords are more selective in a substring match.
func capKeywords(words []string, n int) []string {
	if len(words) <= n {
		return words
	}
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	return sorted[:n]
}

var ErrNoTagger = errors.New("graph: no tagger configured")

// ExtractKeywords turns a free-text query into keywords: the lemmas of its
// nouns and proper nouns plus the text of recognized entities, all lower
// case, followed by synonym expansion. An empty result is not an error.
func (g *GraphClient) ExtractKeywords(ctx context.Context, query string) (KeywordSet, error) {
	if g.tagger == nil {
		return nil, ErrNoTagger
	}
	set := NewKeywordSet()
	text := strings.ToLower(strings.TrimSpace(query))
	if text == "" {
		return set, nil
	}

	tokens, err := g.tagger.Tag(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("tag query: %w", err)
	}
	for _, tok := range tokens {
		if tok.POS != nlp.POSNoun && tok.POS != nlp.POSProperNoun {
			continue
		}
		lemma := tok.Lemma
		if lemma == "" {
			lemma = tok.Text
		}
		set.Add(lemma)
	}

	if g.recognizer != nil {
		spans, err := g.recognizer.Recognize(ctx, text)
		if err != nil {
			// keywords from tagging still stand
			logger.Warn("[Graph] Entity recognition on query failed", "err", err)
		}
		for _, span := range spans {
			set.Add(span.Text)
		}
	}

	g.synonyms.Expand(set)
	logger.Debug("[Graph] Extracted keywords", "query", util.Truncate(query, 80), "keywords", set.Sorted())
	return set, nil
}
