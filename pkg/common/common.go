package common

// Category is the closed set of entity kinds the graph stores. Values double
// as the primary node label in graph databases.
type Category string

const (
	CategoryOrganization Category = "Organization"
	CategoryPerson       Category = "Person"
	CategoryLocation     Category = "Location"
)

// Tag is an additional label carried by an entity node. Every entity carries
// at least the tag equal to its category.
type Tag string

const (
	TagOrganization Tag = "Organization"
	TagPerson       Tag = "Person"
	TagAuthor       Tag = "Author"
	TagLocation     Tag = "Location"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryOrganization, CategoryPerson, CategoryLocation}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryOrganization, CategoryPerson, CategoryLocation:
		return true
	}
	return false
}

// Tags returns the labels a node of this category carries. Person nodes are
// also authors.
func (c Category) Tags() []Tag {
	switch c {
	case CategoryOrganization:
		return []Tag{TagOrganization}
	case CategoryPerson:
		return []Tag{TagPerson, TagAuthor}
	case CategoryLocation:
		return []Tag{TagLocation}
	}
	return nil
}

// TagStrings is Tags as plain strings, the form stored in the databases.
func (c Category) TagStrings() []string {
	tags := c.Tags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// Document is one input record: where a publication's text comes from and
// the metadata describing it.
type Document struct {
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	DOI       string `json:"doi,omitempty"`
	// TextPath points at already extracted plain text. When empty, the text
	// is loaded from LocalPath or SourceURL.
	TextPath  string `json:"text_path,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
	Text      string `json:"-"`
}

// Publication is the graph node for a document.
type Publication struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	DOI       string `json:"doi,omitempty"`
}

// Entity is a named thing mentioned by publications. Its identity is
// (Category, NameKey); Name keeps the display form first seen.
type Entity struct {
	Category Category `json:"category"`
	NameKey  string   `json:"name_key"`
	Name     string   `json:"name"`
}

// ID is the stable node identifier of the entity across backends.
func (e Entity) ID() string {
	return string(e.Category) + ":" + e.NameKey
}

// EntityCount is one row of an analytics ranking.
type EntityCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Node is a graph node in a subgraph response.
type Node struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Edge is a directed relationship in a subgraph response.
type Edge struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartNode  string         `json:"start_node"`
	EndNode    string         `json:"end_node"`
	Properties map[string]any `json:"properties"`
}

// Subgraph is a publication node, the entities it mentions and the edges
// between them.
type Subgraph struct {
	Nodes         []Node `json:"nodes"`
	Relationships []Edge `json:"relationships"`
}

// GraphStats summarizes the graph contents.
type GraphStats struct {
	Publications int              `json:"publications"`
	Entities     map[Category]int `json:"entities"`
	Mentions     int              `json:"mentions"`
}

const RelMentions = "MENTIONS"

// PublicationNodeID returns the node identifier of a publication.
func PublicationNodeID(key string) string {
	return key
}

// MentionEdgeID returns the identifier of the edge from a publication to an
// entity.
func MentionEdgeID(pubKey string, e Entity) string {
	return pubKey + "->" + e.ID()
}
