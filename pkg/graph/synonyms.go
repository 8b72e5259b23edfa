package graph

import (
	"sort"
	"strings"
)

// defaultSynonymTable maps a query term onto the broader terms it also
// stands for. Expansion only goes one way: "mice" adds "rodent", never the
// reverse.
var defaultSynonymTable = map[string][]string{
	"mice":  {"rodent"},
	"mouse": {"rodent"},
	"rat":   {"rodent"},
	"rats":  {"rodent"},
	"iss":   {"international space station"},
	"nasa":  {"national aeronautics and space administration"},
	"esa":   {"european space agency"},
	"jaxa":  {"japan aerospace exploration agency"},
}

// Synonyms expands keyword sets and answers which terms a keyword was
// derived from.
type Synonyms struct {
	forward map[string][]string
	reverse map[string][]string
}

// NewSynonyms builds a Synonyms from a term -> expansions table. Terms and
// expansions are lower-cased.
func NewSynonyms(table map[string][]string) *Synonyms {
	s := &Synonyms{
		forward: make(map[string][]string, len(table)),
		reverse: make(map[string][]string),
	}
	for term, expansions := range table {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		for _, e := range expansions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" || e == term {
				continue
			}
			s.forward[term] = append(s.forward[term], e)
			s.reverse[e] = append(s.reverse[e], term)
		}
	}
	for k := range s.reverse {
		sort.Strings(s.reverse[k])
	}
	return s
}

func DefaultSynonyms() *Synonyms {
	return NewSynonyms(defaultSynonymTable)
}

// Merge returns a Synonyms containing both tables.
func (s *Synonyms) Merge(table map[string][]string) *Synonyms {
	combined := make(map[string][]string, len(s.forward)+len(table))
	for k, v := range s.forward {
		combined[k] = append(combined[k], v...)
	}
	for k, v := range table {
		combined[k] = append(combined[k], v...)
	}
	return NewSynonyms(combined)
}

// Expand adds the expansions of every member to set.
func (s *Synonyms) Expand(set KeywordSet) {
	for _, kw := range set.Sorted() {
		for _, e := range s.forward[kw] {
			set.Add(e)
		}
	}
}

// Alternatives lists kw followed by every term that expands to kw. A
// keyword produced by expansion matches entity names containing any of the
// terms it stands for, so "rodent" matches "Mice Facility".
func (s *Synonyms) Alternatives(kw string) []string {
	out := []string{kw}
	for _, t := range s.reverse[kw] {
		if t != kw {
			out = append(out, t)
		}
	}
	return out
}
