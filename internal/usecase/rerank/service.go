package rerank

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/domain"
	"github.com/kitab-cloud/isnad/internal/metrics"
)

// Service reorders candidates by cross-encoder relevance when a model is
// available, and by a deterministic hybrid lexical score otherwise. Output
// order is deterministic for identical inputs: stable sort, ties broken by
// the candidate's original incoming rank.
type Service struct {
	scorer RelevanceScorer // nil when no model is configured
	cfg    Config
	logger *zap.Logger
}

// New creates a reranker. scorer may be nil.
func New(scorer RelevanceScorer, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = 512
	}
	if cfg.AssumedAvgDocLen <= 0 {
		cfg.AssumedAvgDocLen = 200
	}
	return &Service{scorer: scorer, cfg: cfg, logger: logger}
}

// Rerank scores and reorders candidates, truncating to topK (topK <= 0 keeps
// all). Candidates with no usable text score 0 and sort last, never dropped
// before truncation. Model failure of any kind falls back to the lexical
// method; the call itself never fails.
func (s *Service) Rerank(
	ctx context.Context, query string, candidates []domain.Candidate, topK int, preferModel bool,
) ([]domain.Candidate, Meta) {
	start := time.Now()

	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	meta := Meta{Method: MethodLexical, Scored: len(out)}

	if preferModel && s.scorer != nil {
		if err := s.scoreWithModel(ctx, query, out); err != nil {
			meta.Degraded = true
			meta.Reason = fmt.Sprintf("%v: %v", domain.ErrRerankDegraded, err)
			s.logger.Warn("Relevance model unavailable, using lexical fallback", zap.Error(err))
			metrics.RerankRequestsTotal.WithLabelValues(MethodModel, "error").Inc()
			s.scoreLexical(query, out)
		} else {
			meta.Method = MethodModel
		}
	} else {
		s.scoreLexical(query, out)
	}

	// Stable sort: descending score, ties by original incoming rank.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Rank < out[j].Rank
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	duration := time.Since(start)
	metrics.RerankRequestsTotal.WithLabelValues(meta.Method, "success").Inc()
	metrics.RerankDuration.WithLabelValues(meta.Method).Observe(duration.Seconds())
	s.logger.Debug("Rerank completed",
		zap.String("method", meta.Method),
		zap.Int("candidates", meta.Scored),
		zap.Duration("latency", duration))

	return out, meta
}

// scoreWithModel scores all candidates with usable text via the model,
// mapping raw outputs back by original index, never by response order.
// Empty-text candidates score 0 without reaching the model. Scores are
// collected in a scratch slice and committed only after every batch
// succeeded, so a mid-call failure leaves the incoming scores intact for
// the lexical fallback.
func (s *Service) scoreWithModel(ctx context.Context, query string, cands []domain.Candidate) error {
	var indices []int
	var texts []string
	for i := range cands {
		if cands[i].Text == "" {
			continue
		}
		indices = append(indices, i)
		texts = append(texts, truncate(cands[i].Text, s.cfg.MaxTextLen))
	}

	scored := make([]float64, len(texts))
	for off := 0; off < len(texts); off += s.cfg.BatchSize {
		end := min(off+s.cfg.BatchSize, len(texts))

		scores, err := s.scorer.ScoreBatch(ctx, query, texts[off:end])
		if err != nil {
			return fmt.Errorf("score batch at %d: %w", off, err)
		}
		if len(scores) != end-off {
			return fmt.Errorf("score batch at %d: got %d scores for %d texts", off, len(scores), end-off)
		}

		for k, raw := range scores {
			scored[off+k] = logistic(raw)
		}
	}

	for i := range cands {
		cands[i].Score = 0
	}
	for k, idx := range indices {
		cands[idx].Score = scored[k]
	}
	return nil
}

// scoreLexical applies the deterministic hybrid score: a configurable blend
// of the incoming relevance score and the lexical (overlap + BM25) score.
// The default keeps the majority of weight on the incoming score so already
// reasonable orderings are not destabilized.
func (s *Service) scoreLexical(query string, cands []domain.Candidate) {
	queryTerms := tokenize(query)
	w := s.cfg.LexicalWeight

	for i := range cands {
		if cands[i].Text == "" {
			cands[i].Score = 0
			continue
		}
		lex := lexicalScore(queryTerms, cands[i].Text, s.cfg.AssumedAvgDocLen)
		cands[i].Score = (1-w)*clamp01(cands[i].Score) + w*lex
	}
}

// truncate cuts text to maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
