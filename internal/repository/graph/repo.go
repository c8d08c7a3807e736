package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kitab-cloud/isnad/internal/db"
	"github.com/kitab-cloud/isnad/internal/domain"
)

const nodeKeyPrefix = domain.KeyPrefix + "node:"

// store is the consumer interface for graph reads (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo implements the graph store contract over Redis hashes (nodes), sets
// (typed edges) and an FT index used for ad-hoc queries. All FT query string
// construction lives in this package; the pipeline never sees raw syntax.
type Repo struct {
	store store
}

// New creates a graph repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Get fetches a node snapshot by its typed id.
func (r *Repo) Get(ctx context.Context, id string) (domain.GraphNode, error) {
	fields, err := r.store.HGetAll(ctx, nodeKeyPrefix+id)
	if err != nil {
		return domain.GraphNode{}, fmt.Errorf("get node %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.GraphNode{}, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
	}
	return domain.GraphNode{ID: id, Props: fields}, nil
}

// Traverse follows typed edges from id up to depth hops and returns the
// reached nodes in deterministic (sorted edge list) order. Nodes whose
// hash is missing are skipped.
func (r *Repo) Traverse(
	ctx context.Context, id, edgeType string, dir domain.Direction, depth int,
) ([]domain.GraphNode, error) {
	if depth < 1 {
		depth = 1
	}

	frontier := []string{id}
	visited := map[string]struct{}{id: {}}
	var nodes []domain.GraphNode

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			members, err := r.store.SMembers(ctx, edgeKey(edgeType, dir, cur))
			if err != nil {
				return nil, fmt.Errorf("traverse %s %s from %s: %w", edgeType, dir, cur, err)
			}
			// Redis set order is unspecified; sort for deterministic traversal.
			sort.Strings(members)
			for _, m := range members {
				if _, seen := visited[m]; seen {
					continue
				}
				visited[m] = struct{}{}
				node, err := r.Get(ctx, m)
				if err != nil {
					continue
				}
				nodes = append(nodes, node)
				next = append(next, m)
			}
		}
		frontier = next
	}

	return nodes, nil
}

// FindByCandidate locates the graph node corresponding to a vector-index
// candidate via an id-containment query against the node index. Returns
// domain.ErrNotFound when the candidate has no graph counterpart.
func (r *Repo) FindByCandidate(ctx context.Context, candidateID string) (domain.GraphNode, error) {
	q := fmt.Sprintf("@node_id:{%s}", escapeTag(candidateID))
	nodes, err := r.RawQuery(ctx, q)
	if err != nil {
		return domain.GraphNode{}, err
	}
	if len(nodes) == 0 {
		return domain.GraphNode{}, fmt.Errorf("candidate %s: %w", candidateID, domain.ErrNotFound)
	}
	return nodes[0], nil
}

// RawQuery executes an ad-hoc FT query against the node index for joins not
// expressible via simple traversal.
func (r *Repo) RawQuery(ctx context.Context, query string) ([]domain.GraphNode, error) {
	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName: domain.KeyPrefix + "nodes:idx",
		Query:     query,
		TopK:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("raw query: %w", err)
	}

	nodes := make([]domain.GraphNode, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		nodes = append(nodes, domain.GraphNode{
			ID:    strings.TrimPrefix(entry.Key, nodeKeyPrefix),
			Props: entry.Fields,
		})
	}
	return nodes, nil
}

func edgeKey(edgeType string, dir domain.Direction, id string) string {
	return fmt.Sprintf("%sedge:%s:%s:%s", domain.KeyPrefix, edgeType, dir, id)
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}
