package pgx

import (
	"context"
	"errors"

	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *GraphDBStorage) SaveDocument(ctx context.Context, pub common.Publication, entities []common.Entity) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.saveDocument(ctx, pub, entities)
	return store.Unavailable("postgres: save document", err)
}

func (s *GraphDBStorage) saveDocument(ctx context.Context, pub common.Publication, entities []common.Entity) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var pubID int64
	err = tx.QueryRow(ctx, upsertPublicationSQL,
		pub.Key,
		util.SanitizePostgresText(pub.Title),
		util.SanitizePostgresText(pub.SourceURL),
		util.SanitizePostgresText(pub.DOI),
	).Scan(&pubID)
	if err != nil {
		return err
	}

	groups := store.GroupByCategory(entities)
	entityIDs := make([]int64, 0, len(entities))
	for _, category := range common.Categories {
		group := groups[category]
		if len(group) == 0 {
			continue
		}
		keys := make([]string, len(group))
		names := make([]string, len(group))
		for i, e := range group {
			keys[i] = util.SanitizePostgresText(e.NameKey)
			names[i] = util.SanitizePostgresText(e.Name)
		}
		rows, err := tx.Query(ctx, upsertEntitiesSQL, string(category), keys, names, category.TagStrings())
		if err != nil {
			return err
		}
		ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[int64])
		if err != nil {
			return err
		}
		entityIDs = append(entityIDs, ids...)
	}

	if len(entityIDs) > 0 {
		if _, err := tx.Exec(ctx, insertMentionsSQL, pubID, entityIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Debug("[Postgres] Saved publication", "key", pub.Key, "entities", len(entityIDs))
	return nil
}

func (s *GraphDBStorage) DeleteAll(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.conn.Exec(ctx, deleteAllSQL)
	return store.Unavailable("postgres: delete all", err)
}

func (s *GraphDBStorage) FindPublications(ctx context.Context, pattern store.Pattern) ([]common.Publication, error) {
	if len(pattern.Clauses) == 0 || pattern.Limit <= 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, args := findPublicationsSQL(pattern)
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, store.Unavailable("postgres: find publications", err)
	}
	pubs, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Publication, error) {
		var p common.Publication
		err := row.Scan(&p.Key, &p.Title, &p.SourceURL, &p.DOI)
		return p, err
	})
	if err != nil {
		return nil, store.Unavailable("postgres: find publications", err)
	}
	return pubs, nil
}

func (s *GraphDBStorage) TopEntities(ctx context.Context, tag common.Tag, n int) ([]common.EntityCount, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx, topEntitiesSQL, string(tag), n)
	if err != nil {
		return nil, store.Unavailable("postgres: top entities", err)
	}
	counts, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.EntityCount, error) {
		var c common.EntityCount
		err := row.Scan(&c.Name, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, store.Unavailable("postgres: top entities", err)
	}
	return counts, nil
}

func (s *GraphDBStorage) PublicationSubgraph(ctx context.Context, key string) (common.Subgraph, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		pubID int64
		pub   common.Publication
	)
	err := s.conn.QueryRow(ctx, publicationByKeySQL, key).Scan(&pubID, &pub.Key, &pub.Title, &pub.SourceURL, &pub.DOI)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Subgraph{}, common.ErrNotFound
	}
	if err != nil {
		return common.Subgraph{}, store.Unavailable("postgres: publication subgraph", err)
	}

	rows, err := s.conn.Query(ctx, publicationEntitiesSQL, pubID)
	if err != nil {
		return common.Subgraph{}, store.Unavailable("postgres: publication subgraph", err)
	}
	entities, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Entity, error) {
		var (
			e        common.Entity
			category string
		)
		err := row.Scan(&category, &e.NameKey, &e.Name)
		e.Category = common.Category(category)
		return e, err
	})
	if err != nil {
		return common.Subgraph{}, store.Unavailable("postgres: publication subgraph", err)
	}

	sg := common.Subgraph{
		Nodes:         []common.Node{store.PublicationNode(pub)},
		Relationships: make([]common.Edge, 0, len(entities)),
	}
	for _, e := range entities {
		sg.Nodes = append(sg.Nodes, store.EntityNode(e))
		sg.Relationships = append(sg.Relationships, store.MentionEdge(pub.Key, e))
	}
	return sg, nil
}

func (s *GraphDBStorage) PublicationKeyByDOI(ctx context.Context, doi string) (string, error) {
	if doi == "" {
		return "", common.ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var key string
	err := s.conn.QueryRow(ctx, publicationKeyByDOISQL, doi).Scan(&key)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", store.Unavailable("postgres: publication by doi", err)
	}
	return key, nil
}

func (s *GraphDBStorage) Stats(ctx context.Context) (common.GraphStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats := common.GraphStats{Entities: make(map[common.Category]int)}
	if err := s.conn.QueryRow(ctx, countPublicationsSQL).Scan(&stats.Publications); err != nil {
		return common.GraphStats{}, store.Unavailable("postgres: stats", err)
	}
	if err := s.conn.QueryRow(ctx, countMentionsSQL).Scan(&stats.Mentions); err != nil {
		return common.GraphStats{}, store.Unavailable("postgres: stats", err)
	}
	rows, err := s.conn.Query(ctx, countEntitiesSQL)
	if err != nil {
		return common.GraphStats{}, store.Unavailable("postgres: stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return common.GraphStats{}, store.Unavailable("postgres: stats", err)
		}
		stats.Entities[common.Category(category)] = n
	}
	if err := rows.Err(); err != nil {
		return common.GraphStats{}, store.Unavailable("postgres: stats", err)
	}
	return stats, nil
}
