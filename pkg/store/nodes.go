package store

import "github.com/spacebio/knowledge-engine/backend/pkg/common"

// PublicationNode renders a publication the way every backend reports it.
func PublicationNode(pub common.Publication) common.Node {
	props := map[string]any{
		"key":        pub.Key,
		"title":      pub.Title,
		"source_url": pub.SourceURL,
	}
	if pub.DOI != "" {
		props["doi"] = pub.DOI
	}
	return common.Node{
		ID:         common.PublicationNodeID(pub.Key),
		Labels:     []string{"Publication"},
		Properties: props,
	}
}

// EntityNode renders an entity the way every backend reports it.
func EntityNode(e common.Entity) common.Node {
	return common.Node{
		ID:     e.ID(),
		Labels: append([]string{"Entity"}, e.Category.TagStrings()...),
		Properties: map[string]any{
			"name":     e.Name,
			"name_key": e.NameKey,
			"category": string(e.Category),
		},
	}
}

// MentionEdge renders the MENTIONS edge from a publication to an entity.
func MentionEdge(pubKey string, e common.Entity) common.Edge {
	return common.Edge{
		ID:         common.MentionEdgeID(pubKey, e),
		Type:       common.RelMentions,
		StartNode:  common.PublicationNodeID(pubKey),
		EndNode:    e.ID(),
		Properties: map[string]any{},
	}
}
