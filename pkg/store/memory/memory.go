// Package memory is an in-process GraphStorage used by tests and by local
// runs without a database.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
)

type mention struct {
	pub    string
	entity string
}

type GraphMemoryStorage struct {
	mu sync.RWMutex

	pubs     map[string]common.Publication
	pubOrder []string
	entities map[string]common.Entity
	entOrder []string
	mentions map[mention]struct{}
	// outgoing keeps mention edges per publication in insertion order.
	outgoing map[string][]string
}

func NewGraphMemoryStorage() *GraphMemoryStorage {
	s := &GraphMemoryStorage{}
	s.reset()
	return s
}

func (s *GraphMemoryStorage) reset() {
	s.pubs = make(map[string]common.Publication)
	s.pubOrder = nil
	s.entities = make(map[string]common.Entity)
	s.entOrder = nil
	s.mentions = make(map[mention]struct{})
	s.outgoing = make(map[string][]string)
}

func (s *GraphMemoryStorage) SaveDocument(ctx context.Context, pub common.Publication, entities []common.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pubs[pub.Key]; !ok {
		s.pubOrder = append(s.pubOrder, pub.Key)
	}
	s.pubs[pub.Key] = pub

	for _, group := range store.GroupByCategory(entities) {
		for _, e := range group {
			id := e.ID()
			if _, ok := s.entities[id]; !ok {
				s.entities[id] = e
				s.entOrder = append(s.entOrder, id)
			}
			m := mention{pub: pub.Key, entity: id}
			if _, ok := s.mentions[m]; ok {
				continue
			}
			s.mentions[m] = struct{}{}
			s.outgoing[pub.Key] = append(s.outgoing[pub.Key], id)
		}
	}
	return nil
}

func (s *GraphMemoryStorage) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *GraphMemoryStorage) FindPublications(ctx context.Context, pattern store.Pattern) ([]common.Publication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pattern.Clauses) == 0 || pattern.Limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pubs []common.Publication
	for _, key := range s.pubOrder {
		if s.matches(key, pattern.Clauses) {
			pubs = append(pubs, s.pubs[key])
		}
	}
	sort.Slice(pubs, func(i, j int) bool {
		if pubs[i].Title != pubs[j].Title {
			return pubs[i].Title < pubs[j].Title
		}
		return pubs[i].Key < pubs[j].Key
	})
	if len(pubs) > pattern.Limit {
		pubs = pubs[:pattern.Limit]
	}
	return pubs, nil
}

func (s *GraphMemoryStorage) matches(pubKey string, clauses [][]string) bool {
	for _, alts := range clauses {
		found := false
		for _, id := range s.outgoing[pubKey] {
			nameKey := s.entities[id].NameKey
			if slices.ContainsFunc(alts, func(alt string) bool { return strings.Contains(nameKey, alt) }) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *GraphMemoryStorage) TopEntities(ctx context.Context, tag common.Tag, n int) ([]common.EntityCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for m := range s.mentions {
		counts[m.entity]++
	}
	var out []common.EntityCount
	for _, id := range s.entOrder {
		e := s.entities[id]
		if !slices.Contains(e.Category.Tags(), tag) || counts[id] == 0 {
			continue
		}
		out = append(out, common.EntityCount{Name: e.Name, Count: counts[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *GraphMemoryStorage) PublicationSubgraph(ctx context.Context, key string) (common.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return common.Subgraph{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, ok := s.pubs[key]
	if !ok {
		return common.Subgraph{}, common.ErrNotFound
	}
	sg := common.Subgraph{
		Nodes:         []common.Node{store.PublicationNode(pub)},
		Relationships: []common.Edge{},
	}
	for _, id := range s.outgoing[key] {
		e := s.entities[id]
		sg.Nodes = append(sg.Nodes, store.EntityNode(e))
		sg.Relationships = append(sg.Relationships, store.MentionEdge(key, e))
	}
	return sg, nil
}

func (s *GraphMemoryStorage) PublicationKeyByDOI(ctx context.Context, doi string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doi == "" {
		return "", common.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found string
	for key, pub := range s.pubs {
		if strings.EqualFold(pub.DOI, doi) && (found == "" || key < found) {
			found = key
		}
	}
	if found == "" {
		return "", common.ErrNotFound
	}
	return found, nil
}

func (s *GraphMemoryStorage) Stats(ctx context.Context) (common.GraphStats, error) {
	if err := ctx.Err(); err != nil {
		return common.GraphStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := common.GraphStats{
		Publications: len(s.pubs),
		Entities:     make(map[common.Category]int),
		Mentions:     len(s.mentions),
	}
	for _, e := range s.entities {
		stats.Entities[e.Category]++
	}
	return stats, nil
}

func (s *GraphMemoryStorage) Close(context.Context) error { return nil }
