package answer

import (
	"context"
	"time"

	"github.com/kitab-cloud/isnad/internal/domain"
	"github.com/kitab-cloud/isnad/internal/usecase/expansion"
	"github.com/kitab-cloud/isnad/internal/usecase/rerank"
)

// VectorSearcher runs the similarity search over the chunk index.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]domain.RetrievedChunk, error)
}

// Expander widens vector hits with graph context.
type Expander interface {
	Expand(ctx context.Context, hits []domain.VectorHit, cfg expansion.Config) (expansion.Result, error)
}

// Reranker reorders candidates by relevance. Never fails; degraded calls are
// reported through Meta.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int, preferModel bool) ([]domain.Candidate, rerank.Meta)
}

// Config bounds one pipeline run. Immutable at request scope.
type Config struct {
	TopK             int
	AnswerTopK       int
	PreferModel      bool
	Expansion        expansion.Config
	RetrievalTimeout time.Duration
	ExpansionTimeout time.Duration
	RerankTimeout    time.Duration
	Deadline         time.Duration
}
