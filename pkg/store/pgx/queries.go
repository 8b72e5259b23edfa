package pgx

import (
	"fmt"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/store"
)

const upsertPublicationSQL = `
INSERT INTO publications (pub_key, title, source_url, doi)
VALUES ($1, $2, $3, $4)
ON CONFLICT (pub_key) DO UPDATE
SET title      = EXCLUDED.title,
    source_url = EXCLUDED.source_url,
    doi        = EXCLUDED.doi
RETURNING id;
`

// The no-op update makes RETURNING yield ids of rows that already existed.
// name is left untouched so the first seen display form wins.
const upsertEntitiesSQL = `
INSERT INTO entities (category, name_key, name, tags)
SELECT $1::text, r.name_key, r.name, $4::text[]
FROM unnest($2::text[], $3::text[]) AS r(name_key, name)
ON CONFLICT (category, name_key) DO UPDATE
SET category = EXCLUDED.category
RETURNING id;
`

const insertMentionsSQL = `
INSERT INTO mentions (publication_id, entity_id)
SELECT $1::bigint, unnest($2::bigint[])
ON CONFLICT DO NOTHING;
`

const deleteAllSQL = `TRUNCATE mentions, entities, publications RESTART IDENTITY;`

const topEntitiesSQL = `
SELECT e.name, count(DISTINCT m.publication_id) AS mentions
FROM entities e
JOIN mentions m ON m.entity_id = e.id
WHERE $1 = ANY (e.tags)
GROUP BY e.id, e.name
ORDER BY mentions DESC, e.name ASC
LIMIT $2;
`

const publicationByKeySQL = `
SELECT id, pub_key, title, source_url, doi
FROM publications
WHERE pub_key = $1;
`

const publicationKeyByDOISQL = `
SELECT pub_key
FROM publications
WHERE lower(doi) = lower($1)
ORDER BY pub_key
LIMIT 1;
`

const publicationEntitiesSQL = `
SELECT e.category, e.name_key, e.name
FROM mentions m
JOIN entities e ON e.id = m.entity_id
WHERE m.publication_id = $1
ORDER BY e.category, e.name_key;
`

const (
	countPublicationsSQL = `SELECT count(*) FROM publications;`
	countMentionsSQL     = `SELECT count(*) FROM mentions;`
	countEntitiesSQL     = `SELECT category, count(*) FROM entities GROUP BY category;`
)

// findPublicationsSQL builds one EXISTS clause per pattern clause. Each
// clause's alternatives are bound as a text array; the limit comes last.
func findPublicationsSQL(pattern store.Pattern) (string, []any) {
	args := make([]any, 0, len(pattern.Clauses)+1)
	conds := make([]string, 0, len(pattern.Clauses))
	for _, alts := range pattern.Clauses {
		args = append(args, alts)
		conds = append(conds, fmt.Sprintf(`EXISTS (
    SELECT 1 FROM mentions m
    JOIN entities e ON e.id = m.entity_id
    WHERE m.publication_id = p.id
      AND EXISTS (SELECT 1 FROM unnest($%d::text[]) AS alt WHERE strpos(e.name_key, alt) > 0)
)`, len(args)))
	}
	args = append(args, pattern.Limit)

	var b strings.Builder
	b.WriteString("SELECT p.pub_key, p.title, p.source_url, p.doi\nFROM publications p\n")
	if len(conds) > 0 {
		b.WriteString("WHERE ")
		b.WriteString(strings.Join(conds, "\nAND "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "ORDER BY p.title, p.pub_key\nLIMIT $%d;", len(args))
	return b.String(), args
}
