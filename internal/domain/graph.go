package domain

import "strings"

// Node types as they appear in typed graph ids ("<type>:<local-id>").
const (
	NodeChunk  = "chunk"
	NodeAyah   = "ayah"
	NodeEvent  = "event"
	NodeStory  = "story"
	NodeEntity = "entity"
	NodePlace  = "place"
)

// Edge types understood by the graph store.
const (
	EdgeExplains     = "explains"
	EdgeSupports     = "supports"
	EdgeNext         = "next"
	EdgeThematicLink = "thematic-link"
	EdgeInvolves     = "involves"
	EdgeLocatedIn    = "located-in"
	EdgePartOf       = "part-of"
)

// Direction of an edge traversal.
type Direction string

const (
	DirOut Direction = "out"
	DirIn  Direction = "in"
)

// GraphNode is a read-only snapshot of a graph store record. The pipeline
// never writes nodes and never caches them past a single query.
type GraphNode struct {
	ID    string
	Props map[string]string
}

// Type returns the node type prefix of the typed id, or "" if the id is untyped.
func (n GraphNode) Type() string {
	if i := strings.IndexByte(n.ID, ':'); i > 0 {
		return n.ID[:i]
	}
	return ""
}

// Text returns the node's text property.
func (n GraphNode) Text() string { return n.Props["text"] }

// Prop returns a named property, or "" when absent.
func (n GraphNode) Prop(name string) string { return n.Props[name] }
