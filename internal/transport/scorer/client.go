// Package scorer is the relevance-model client. It speaks the rerank
// protocol of text-embeddings-inference-style cross-encoder servers:
// POST /rerank {"query": ..., "texts": [...], "raw_scores": true} and gets
// one raw score per text, same order as input.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds the scorer endpoint settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client scores (query, text) pairs against a cross-encoder endpoint.
// The underlying HTTP connection pool is long-lived and shared across
// requests; the client is safe for concurrent use.
type Client struct {
	baseURL string
	model   string
	httpc   *http.Client
	logger  *zap.Logger
}

// New creates a relevance-model client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
}

type rerankEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScoreBatch scores each text against the query. The returned slice has the
// same length and order as texts; a response of any other shape is an error.
func (c *Client) ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Texts:     texts,
		Model:     c.model,
		RawScores: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, respBody)
	}

	var entries []rerankEntry
	if err := json.Unmarshal(respBody, &entries); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}
	if len(entries) != len(texts) {
		return nil, fmt.Errorf("rerank response length %d does not match input %d", len(entries), len(texts))
	}

	// The endpoint may return entries in relevance order; map back by index.
	scores := make([]float64, len(texts))
	for _, e := range entries {
		if e.Index < 0 || e.Index >= len(scores) {
			return nil, fmt.Errorf("rerank response index %d out of range", e.Index)
		}
		scores[e.Index] = e.Score
	}
	return scores, nil
}
