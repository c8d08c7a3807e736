package expansion

import (
	"context"

	"github.com/kitab-cloud/isnad/internal/domain"
)

// GraphStore defines the graph read contract for expansion.
type GraphStore interface {
	Traverse(ctx context.Context, id, edgeType string, dir domain.Direction, depth int) ([]domain.GraphNode, error)
	FindByCandidate(ctx context.Context, candidateID string) (domain.GraphNode, error)
}

// Config bounds one expansion call.
type Config struct {
	MaxDepth            int
	MaxNeighborsPerNode int
	IncludeTimeline     bool
	IncludeThematic     bool
	IncludeEntities     bool
}

// Result is the grouped expansion output. Paths maps each original candidate
// id to the node chain it resolved to (hit → context → event → story); the
// chain is provenance for citation display, not a scoring input.
type Result struct {
	Ayahs    []domain.GraphNode
	Events   []domain.GraphNode
	Stories  []domain.GraphNode
	Timeline []domain.GraphNode
	Thematic []domain.GraphNode
	Entities []domain.GraphNode
	Places   []domain.GraphNode
	Paths    map[string][]string
}

// Empty reports whether the expansion found nothing.
func (r Result) Empty() bool {
	return len(r.Ayahs) == 0 && len(r.Events) == 0 && len(r.Stories) == 0 &&
		len(r.Timeline) == 0 && len(r.Thematic) == 0 &&
		len(r.Entities) == 0 && len(r.Places) == 0
}
