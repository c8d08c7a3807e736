package domain

import "context"

// VectorHit is a single entry from the vector similarity search.
// Rank is the 0-based position in the similarity-ordered result list.
type VectorHit struct {
	CandidateID string
	Rank        int
	Similarity  float64
}

// RetrievedChunk pairs a vector hit with the chunk payload the index stored
// alongside the vector. The hit itself stays minimal and immutable.
type RetrievedChunk struct {
	Hit      VectorHit
	Text     string
	SourceID string
	Surah    int
	Start    int
	End      int
}

// Candidate is the unit the reranker orders. Score is the incoming relevance
// (similarity for vector hits, a fixed prior for graph-expanded context) and
// Rank the original incoming position used as the deterministic tie-break.
type Candidate struct {
	ID         string
	Text       string
	Score      float64
	Rank       int
	SourceID   string
	VectorRank int
}

// EmbeddingResult is the output of a single embedding call.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}
