package domain

import "errors"

// KeyPrefix namespaces every Redis key written or read by this service.
const KeyPrefix = "isnad:"

// Sentinel errors. Only ErrRetrievalUnavailable and ErrInvalidConfig are
// fatal; the degraded sentinels mark fallback paths the pipeline survives.
var (
	// ErrRetrievalUnavailable means the vector store (or the query embedder
	// in front of it) is down. There is no fallback: the caller gets a
	// service-unavailable response instead of an answer.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrExpansionDegraded means the graph store was unreachable for the
	// whole expansion call. The pipeline continues with vector-only context.
	ErrExpansionDegraded = errors.New("graph expansion degraded")

	// ErrRerankDegraded means the relevance model was unavailable or returned
	// a malformed response. The deterministic lexical fallback was used.
	ErrRerankDegraded = errors.New("rerank degraded")

	// ErrInvalidConfig marks missing or inconsistent startup configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound marks a missing graph node or key.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingProviderError marks upstream embedding API failures.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
