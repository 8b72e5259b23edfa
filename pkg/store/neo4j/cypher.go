package neo4j

import (
	"fmt"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"
)

var schemaStatements = []string{
	`CREATE CONSTRAINT publication_key_unique IF NOT EXISTS FOR (p:Publication) REQUIRE p.key IS UNIQUE`,
	`CREATE CONSTRAINT entity_identity_unique IF NOT EXISTS FOR (e:Entity) REQUIRE (e.category, e.name_key) IS UNIQUE`,
}

// categoryLabels holds the extra labels set on entity nodes. Labels cannot be
// passed as parameters, so they are only ever taken from this table.
var categoryLabels = map[common.Category]string{
	common.CategoryOrganization: ":Organization",
	common.CategoryPerson:       ":Person:Author",
	common.CategoryLocation:     ":Location",
}

const mergePublication = `
MERGE (p:Publication {key: $key})
SET p.title = $title,
    p.source_url = $source_url,
    p.doi = $doi
`

// mergeEntitiesStatement returns the statement upserting one category of
// entities and linking them to the publication.
func mergeEntitiesStatement(category common.Category) (string, bool) {
	labels, ok := categoryLabels[category]
	if !ok {
		return "", false
	}
	return `
MATCH (p:Publication {key: $key})
UNWIND $entities AS row
MERGE (e:Entity {category: row.category, name_key: row.name_key})
ON CREATE SET e.name = row.name, e.tags = row.tags
SET e` + labels + `
MERGE (p)-[:MENTIONS]->(e)
`, true
}

func entityRows(entities []common.Entity) []map[string]any {
	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, map[string]any{
			"category": string(e.Category),
			"name_key": e.NameKey,
			"name":     e.Name,
			"tags":     e.Category.TagStrings(),
		})
	}
	return rows
}

const deleteAll = `MATCH (n) DETACH DELETE n`

// findPublicationsQuery builds one existential subquery per clause. Clause
// alternatives are bound as $k0, $k1, ...
func findPublicationsQuery(pattern store.Pattern) (string, map[string]any) {
	params := map[string]any{"limit": int64(pattern.Limit)}
	conds := make([]string, 0, len(pattern.Clauses))
	for i, alts := range pattern.Clauses {
		name := fmt.Sprintf("k%d", i)
		params[name] = alts
		conds = append(conds, fmt.Sprintf(
			"EXISTS { MATCH (p)-[:MENTIONS]->(e%d:Entity) WHERE any(alt IN $%s WHERE e%d.name_key CONTAINS alt) }",
			i, name, i,
		))
	}
	var b strings.Builder
	b.WriteString("MATCH (p:Publication)\n")
	if len(conds) > 0 {
		b.WriteString("WHERE ")
		b.WriteString(strings.Join(conds, "\n  AND "))
		b.WriteString("\n")
	}
	b.WriteString("RETURN p.key AS key, p.title AS title, p.source_url AS source_url, p.doi AS doi\n")
	b.WriteString("ORDER BY title, key\nLIMIT $limit")
	return b.String(), params
}

const topEntities = `
MATCH (p:Publication)-[:MENTIONS]->(e:Entity)
WHERE $tag IN e.tags
RETURN e.name AS name, count(DISTINCT p) AS mentions
ORDER BY mentions DESC, name ASC
LIMIT $n
`

const publicationSubgraph = `
MATCH (p:Publication {key: $key})
OPTIONAL MATCH (p)-[:MENTIONS]->(e:Entity)
RETURN p.key AS key, p.title AS title, p.source_url AS source_url, p.doi AS doi,
       collect(e {.category, .name_key, .name}) AS entities
`

const publicationKeyByDOI = `
MATCH (p:Publication)
WHERE toLower(p.doi) = toLower($doi)
RETURN p.key AS key
ORDER BY key
LIMIT 1
`

const (
	countPublications = `MATCH (p:Publication) RETURN count(p) AS n`
	countEntities     = `MATCH (e:Entity) RETURN e.category AS category, count(e) AS n`
	countMentions     = `MATCH (:Publication)-[r:MENTIONS]->(:Entity) RETURN count(r) AS n`
)
