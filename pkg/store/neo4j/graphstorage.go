package neo4j

import (
	"context"
	"sort"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"

	neo4jv5 "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func (s *GraphNeo4jStorage) write(ctx context.Context, work neo4jv5.ManagedTransactionWork) (any, error) {
	session := s.session(ctx, neo4jv5.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work, neo4jv5.WithTxTimeout(s.timeout))
}

func (s *GraphNeo4jStorage) read(ctx context.Context, work neo4jv5.ManagedTransactionWork) (any, error) {
	session := s.session(ctx, neo4jv5.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work, neo4jv5.WithTxTimeout(s.timeout))
}

func run(ctx context.Context, tx neo4jv5.ManagedTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (s *GraphNeo4jStorage) SaveDocument(ctx context.Context, pub common.Publication, entities []common.Entity) error {
	groups := store.GroupByCategory(entities)

	_, err := s.write(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, mergePublication, map[string]any{
			"key":        pub.Key,
			"title":      pub.Title,
			"source_url": pub.SourceURL,
			"doi":        pub.DOI,
		}); err != nil {
			return nil, err
		}
		for _, category := range common.Categories {
			group := groups[category]
			if len(group) == 0 {
				continue
			}
			stmt, ok := mergeEntitiesStatement(category)
			if !ok {
				continue
			}
			if err := run(ctx, tx, stmt, map[string]any{
				"key":      pub.Key,
				"entities": entityRows(group),
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return store.Unavailable("neo4j: save document", err)
	}
	logger.Debug("[Neo4j] Saved publication", "key", pub.Key, "entities", len(entities))
	return nil
}

func (s *GraphNeo4jStorage) DeleteAll(ctx context.Context) error {
	_, err := s.write(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		return nil, run(ctx, tx, deleteAll, nil)
	})
	return store.Unavailable("neo4j: delete all", err)
}

func (s *GraphNeo4jStorage) FindPublications(ctx context.Context, pattern store.Pattern) ([]common.Publication, error) {
	if len(pattern.Clauses) == 0 || pattern.Limit <= 0 {
		return nil, nil
	}
	query, params := findPublicationsQuery(pattern)
	out, err := s.read(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		pubs := make([]common.Publication, 0, len(records))
		for _, rec := range records {
			pub, err := publicationFromRecord(rec)
			if err != nil {
				return nil, err
			}
			pubs = append(pubs, pub)
		}
		return pubs, nil
	})
	if err != nil {
		return nil, store.Unavailable("neo4j: find publications", err)
	}
	return out.([]common.Publication), nil
}

func (s *GraphNeo4jStorage) TopEntities(ctx context.Context, tag common.Tag, n int) ([]common.EntityCount, error) {
	if n <= 0 {
		return nil, nil
	}
	out, err := s.read(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, topEntities, map[string]any{"tag": string(tag), "n": int64(n)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		counts := make([]common.EntityCount, 0, len(records))
		for _, rec := range records {
			name, _, err := neo4jv5.GetRecordValue[string](rec, "name")
			if err != nil {
				return nil, err
			}
			mentions, _, err := neo4jv5.GetRecordValue[int64](rec, "mentions")
			if err != nil {
				return nil, err
			}
			counts = append(counts, common.EntityCount{Name: name, Count: int(mentions)})
		}
		return counts, nil
	})
	if err != nil {
		return nil, store.Unavailable("neo4j: top entities", err)
	}
	return out.([]common.EntityCount), nil
}

func (s *GraphNeo4jStorage) PublicationSubgraph(ctx context.Context, key string) (common.Subgraph, error) {
	out, err := s.read(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, publicationSubgraph, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, common.ErrNotFound
		}
		return subgraphFromRecord(records[0])
	})
	if err != nil {
		return common.Subgraph{}, store.Unavailable("neo4j: publication subgraph", err)
	}
	return out.(common.Subgraph), nil
}

func publicationFromRecord(rec *neo4jv5.Record) (common.Publication, error) {
	pub := common.Publication{}
	var err error
	if pub.Key, _, err = neo4jv5.GetRecordValue[string](rec, "key"); err != nil {
		return common.Publication{}, err
	}
	// title, source_url and doi may be null on nodes written by other tools
	pub.Title, _ = stringValue(rec, "title")
	pub.SourceURL, _ = stringValue(rec, "source_url")
	pub.DOI, _ = stringValue(rec, "doi")
	return pub, nil
}

func subgraphFromRecord(rec *neo4jv5.Record) (common.Subgraph, error) {
	pub, err := publicationFromRecord(rec)
	if err != nil {
		return common.Subgraph{}, err
	}

	rawEntities, _, err := neo4jv5.GetRecordValue[[]any](rec, "entities")
	if err != nil {
		return common.Subgraph{}, err
	}
	entities := make([]common.Entity, 0, len(rawEntities))
	for _, raw := range rawEntities {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		category, _ := m["category"].(string)
		nameKey, _ := m["name_key"].(string)
		name, _ := m["name"].(string)
		entities = append(entities, common.Entity{Category: common.Category(category), NameKey: nameKey, Name: name})
	}
	return buildSubgraph(pub, entities), nil
}

func (s *GraphNeo4jStorage) PublicationKeyByDOI(ctx context.Context, doi string) (string, error) {
	if doi == "" {
		return "", common.ErrNotFound
	}
	out, err := s.read(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, publicationKeyByDOI, map[string]any{"doi": doi})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, common.ErrNotFound
		}
		key, _, err := neo4jv5.GetRecordValue[string](records[0], "key")
		return key, err
	})
	if err != nil {
		return "", store.Unavailable("neo4j: publication by doi", err)
	}
	return out.(string), nil
}

func stringValue(rec *neo4jv5.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// buildSubgraph orders entities by identity so the response is stable.
func buildSubgraph(pub common.Publication, entities []common.Entity) common.Subgraph {
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID() < entities[j].ID() })
	sg := common.Subgraph{
		Nodes:         []common.Node{store.PublicationNode(pub)},
		Relationships: make([]common.Edge, 0, len(entities)),
	}
	for _, e := range entities {
		sg.Nodes = append(sg.Nodes, store.EntityNode(e))
		sg.Relationships = append(sg.Relationships, store.MentionEdge(pub.Key, e))
	}
	return sg
}

func (s *GraphNeo4jStorage) Stats(ctx context.Context) (common.GraphStats, error) {
	out, err := s.read(ctx, func(tx neo4jv5.ManagedTransaction) (any, error) {
		stats := common.GraphStats{Entities: make(map[common.Category]int)}

		single := func(query string) (int, error) {
			res, err := tx.Run(ctx, query, nil)
			if err != nil {
				return 0, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return 0, err
			}
			n, _, err := neo4jv5.GetRecordValue[int64](rec, "n")
			return int(n), err
		}
		var err error
		if stats.Publications, err = single(countPublications); err != nil {
			return nil, err
		}
		if stats.Mentions, err = single(countMentions); err != nil {
			return nil, err
		}

		res, err := tx.Run(ctx, countEntities, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			category, _ := stringValue(rec, "category")
			n, _, err := neo4jv5.GetRecordValue[int64](rec, "n")
			if err != nil {
				return nil, err
			}
			stats.Entities[common.Category(category)] = int(n)
		}
		return stats, nil
	})
	if err != nil {
		return common.GraphStats{}, store.Unavailable("neo4j: stats", err)
	}
	return out.(common.GraphStats), nil
}
