package rerank

import "context"

// RelevanceScorer scores (query, text) pairs with a cross-encoder model.
// Implementations return one score per text, same length and order as input.
// Absence of a scorer is a supported configuration, not an error.
type RelevanceScorer interface {
	ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Method names for telemetry.
const (
	MethodModel   = "model"
	MethodLexical = "lexical"
)

// Meta describes how a rerank call was served.
type Meta struct {
	Method   string
	Scored   int
	Degraded bool
	Reason   string
}

// Config bounds reranker behavior. All fields are immutable at request scope.
type Config struct {
	BatchSize        int
	MaxTextLen       int
	LexicalWeight    float64
	AssumedAvgDocLen float64
}
