package expansion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/domain"
	"github.com/kitab-cloud/isnad/internal/metrics"
)

// Service expands vector hits into a richer evidence graph: directly
// explained ayahs, supporting narrative events and their story clusters,
// and optionally chronological neighbors, thematic links, entities and
// places.
type Service struct {
	store  GraphStore
	logger *zap.Logger
}

// New creates a graph expansion service.
func New(store GraphStore, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// hitExpansion is the per-hit raw traversal output, merged sequentially
// after the parallel fetch so the seen-id set has a single writer.
type hitExpansion struct {
	candidateID string
	node        domain.GraphNode
	ayahs       []domain.GraphNode
	events      []domain.GraphNode
	stories     []domain.GraphNode
	timeline    []domain.GraphNode
	thematic    []domain.GraphNode
	entities    []domain.GraphNode
	places      []domain.GraphNode
	found       bool
	storeErr    bool
}

// Expand runs the traversals for every hit concurrently and merges the
// results under a single de-duplication set. Individual lookup failures
// degrade silently to "no expansion for this hit"; if every hit failed at
// the store level the call returns domain.ErrExpansionDegraded so the
// orchestrator can continue vector-only.
func (s *Service) Expand(ctx context.Context, hits []domain.VectorHit, cfg Config) (Result, error) {
	if cfg.MaxDepth < 1 {
		return Result{}, fmt.Errorf("%w: expansion max depth must be >= 1, got %d",
			domain.ErrInvalidConfig, cfg.MaxDepth)
	}
	if cfg.MaxNeighborsPerNode < 0 {
		return Result{}, fmt.Errorf("%w: expansion max neighbors must be >= 0, got %d",
			domain.ErrInvalidConfig, cfg.MaxNeighborsPerNode)
	}
	if len(hits) == 0 {
		return Result{Paths: map[string][]string{}}, nil
	}

	expansions := make([]hitExpansion, len(hits))

	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func(i int, hit domain.VectorHit) {
			defer wg.Done()
			expansions[i] = s.expandHit(ctx, hit, cfg)
		}(i, hit)
	}
	wg.Wait()

	return s.merge(hits, expansions)
}

// expandHit runs all traversal types for one hit. Each traversal type fails
// independently: a failed one is skipped, the others still contribute.
func (s *Service) expandHit(ctx context.Context, hit domain.VectorHit, cfg Config) hitExpansion {
	exp := hitExpansion{candidateID: hit.CandidateID}

	node, err := s.store.FindByCandidate(ctx, hit.CandidateID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			exp.storeErr = true
			s.logger.Warn("Graph lookup failed for hit",
				zap.String("candidate_id", hit.CandidateID), zap.Error(err))
		}
		return exp
	}
	exp.node = node
	exp.found = true

	// 1. Directly explained ayahs / context nodes.
	exp.ayahs = s.traverse(ctx, node.ID, domain.EdgeExplains, domain.DirOut, cfg.MaxDepth)

	// 2. Supporting narrative events, then each event's story cluster.
	exp.events = s.traverse(ctx, node.ID, domain.EdgeSupports, domain.DirIn, 1)
	for _, event := range exp.events {
		exp.stories = append(exp.stories,
			s.traverse(ctx, event.ID, domain.EdgePartOf, domain.DirOut, 1)...)
	}

	// 3. Chronologically adjacent events, both directions, bounded.
	if cfg.IncludeTimeline && cfg.MaxNeighborsPerNode > 0 {
		for _, event := range exp.events {
			prev := s.traverse(ctx, event.ID, domain.EdgeNext, domain.DirIn, 1)
			next := s.traverse(ctx, event.ID, domain.EdgeNext, domain.DirOut, 1)
			exp.timeline = append(exp.timeline, bound(prev, cfg.MaxNeighborsPerNode)...)
			exp.timeline = append(exp.timeline, bound(next, cfg.MaxNeighborsPerNode)...)
		}
	}

	// 4. Thematically linked events (symmetric edges, stored outgoing).
	if cfg.IncludeThematic {
		for _, event := range exp.events {
			exp.thematic = append(exp.thematic,
				s.traverse(ctx, event.ID, domain.EdgeThematicLink, domain.DirOut, 1)...)
		}
	}

	// 5. Named entities and places involved in the events.
	if cfg.IncludeEntities {
		for _, event := range exp.events {
			exp.entities = append(exp.entities,
				s.traverse(ctx, event.ID, domain.EdgeInvolves, domain.DirOut, 1)...)
			exp.places = append(exp.places,
				s.traverse(ctx, event.ID, domain.EdgeLocatedIn, domain.DirOut, 1)...)
		}
	}

	return exp
}

// traverse is a failure-tolerant traversal: errors are logged and yield nil.
func (s *Service) traverse(
	ctx context.Context, id, edgeType string, dir domain.Direction, depth int,
) []domain.GraphNode {
	nodes, err := s.store.Traverse(ctx, id, edgeType, dir, depth)
	if err != nil {
		s.logger.Debug("Traversal skipped",
			zap.String("node", id),
			zap.String("edge", edgeType),
			zap.String("dir", string(dir)),
			zap.Error(err))
		return nil
	}
	return nodes
}

// merge folds per-hit expansions into one grouped result, de-duplicating
// across all categories with a single seen-id set. A node added under one
// category is never added again under another, silencing duplicate evidence
// from overlapping hits.
func (s *Service) merge(hits []domain.VectorHit, expansions []hitExpansion) (Result, error) {
	seen := make(map[string]struct{})
	res := Result{Paths: make(map[string][]string, len(hits))}

	add := func(dst *[]domain.GraphNode, category string, nodes []domain.GraphNode) {
		for _, n := range nodes {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			*dst = append(*dst, n)
			metrics.ExpansionNodesTotal.WithLabelValues(category).Inc()
		}
	}

	storeFailures := 0
	for _, exp := range expansions {
		if exp.storeErr {
			storeFailures++
			continue
		}
		if !exp.found {
			continue
		}

		add(&res.Ayahs, "ayah", exp.ayahs)
		add(&res.Events, "event", exp.events)
		add(&res.Stories, "story", exp.stories)
		add(&res.Timeline, "timeline", exp.timeline)
		add(&res.Thematic, "thematic", exp.thematic)
		add(&res.Entities, "entity", exp.entities)
		add(&res.Places, "place", exp.places)

		res.Paths[exp.candidateID] = buildPath(exp)
	}

	if storeFailures == len(hits) {
		return Result{Paths: map[string][]string{}},
			fmt.Errorf("graph store unreachable for all %d hits: %w",
				len(hits), domain.ErrExpansionDegraded)
	}

	return res, nil
}

// buildPath derives the provenance chain hit → node → event → story.
func buildPath(exp hitExpansion) []string {
	path := []string{exp.node.ID}
	if len(exp.events) > 0 {
		path = append(path, exp.events[0].ID)
	}
	if len(exp.stories) > 0 {
		path = append(path, exp.stories[0].ID)
	}
	return path
}

func bound(nodes []domain.GraphNode, limit int) []domain.GraphNode {
	if len(nodes) > limit {
		return nodes[:limit]
	}
	return nodes
}
