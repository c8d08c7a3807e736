package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kitab-cloud/isnad/internal/db"
	"github.com/kitab-cloud/isnad/internal/domain"
)

// store is the consumer interface for vector search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements the vector searcher contract over the FT index of
// commentary chunks.
type Repo struct {
	store      store
	collection string
}

// New creates a vector search repository.
func New(s store, collection string) *Repo {
	return &Repo{store: s, collection: collection}
}

// Search runs a KNN query and returns chunks ranked 0-based by decreasing
// similarity, with the payload fields the index stores next to the vector.
func (r *Repo) Search(ctx context.Context, embedding []float32, topK int) ([]domain.RetrievedChunk, error) {
	indexName := fmt.Sprintf("%s%s:idx", domain.KeyPrefix, r.collection)

	q := &db.KNNQuery{
		IndexName:    indexName,
		Vector:       embedding,
		K:            topK,
		ReturnFields: []string{"__content", "__vector_score", "source", "surah", "ayah_start", "ayah_end"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.collection, err)
	}

	return parseChunks(sr, r.collection), nil
}

func parseChunks(sr *db.SearchResult, collection string) []domain.RetrievedChunk {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	prefix := fmt.Sprintf("%s%s:", domain.KeyPrefix, collection)
	chunks := make([]domain.RetrievedChunk, 0, len(sr.Entries))

	for rank, entry := range sr.Entries {
		chunks = append(chunks, domain.RetrievedChunk{
			Hit: domain.VectorHit{
				CandidateID: strings.TrimPrefix(entry.Key, prefix),
				Rank:        rank,
				Similarity:  entry.Score,
			},
			Text:     entry.Fields["__content"],
			SourceID: entry.Fields["source"],
			Surah:    atoi(entry.Fields["surah"]),
			Start:    atoi(entry.Fields["ayah_start"]),
			End:      atoi(entry.Fields["ayah_end"]),
		})
	}

	return chunks
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
