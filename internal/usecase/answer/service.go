// Package answer orchestrates one pipeline run per question: retrieve,
// expand, rerank, resolve evidence, score, and compose the final payload.
// The service is stateless between calls; nothing request-scoped survives
// past the response.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/domain"
	"github.com/kitab-cloud/isnad/internal/metrics"
	"github.com/kitab-cloud/isnad/internal/usecase/confidence"
	"github.com/kitab-cloud/isnad/internal/usecase/evidence"
)

// ayahContextPrior is the incoming relevance assigned to graph-expanded ayah
// candidates, which carry no vector similarity of their own. Kept below
// typical hit similarities so context never outranks a direct hit before
// reranking.
const ayahContextPrior = 0.35

const refusalText = "I cannot answer this question with sufficient grounding in the available sources."

// Service is the pipeline orchestrator.
type Service struct {
	embedder domain.Embedder
	searcher VectorSearcher
	expander Expander
	reranker Reranker
	resolver *evidence.Resolver
	scorer   *confidence.Scorer
	cfg      Config
	logger   *zap.Logger
}

// New creates the orchestrator and applies config defaults.
func New(
	embedder domain.Embedder,
	searcher VectorSearcher,
	expander Expander,
	reranker Reranker,
	resolver *evidence.Resolver,
	scorer *confidence.Scorer,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.AnswerTopK <= 0 {
		cfg.AnswerTopK = 5
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = 5 * time.Second
	}
	if cfg.ExpansionTimeout <= 0 {
		cfg.ExpansionTimeout = 5 * time.Second
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = 10 * time.Second
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}
	return &Service{
		embedder: embedder,
		searcher: searcher,
		expander: expander,
		reranker: reranker,
		resolver: resolver,
		scorer:   scorer,
		cfg:      cfg,
		logger:   log,
	}
}

// Answer runs the full pipeline for one question. A refusal is a normal
// result, not an error; only retrieval-layer failure returns an error.
func (s *Service) Answer(ctx context.Context, question string, constraints domain.Constraints) (domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, fmt.Errorf("%w: empty question", domain.ErrInvalidConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID))
	var warnings []string

	// RETRIEVED
	chunks, err := s.retrieve(ctx, question)
	if err != nil {
		metrics.AnswerOutcomesTotal.WithLabelValues("error").Inc()
		return domain.Answer{}, err
	}
	log.Debug("Retrieval completed", zap.Int("chunks", len(chunks)))

	hits := make([]domain.VectorHit, len(chunks))
	for i, c := range chunks {
		hits[i] = c.Hit
	}

	// EXPANDED; graph failure degrades to vector-only.
	exp, expandErr := s.expand(ctx, hits)
	if expandErr != nil {
		metrics.DegradationsTotal.WithLabelValues("expansion").Inc()
		warnings = append(warnings, "graph context unavailable; answer grounded on direct matches only")
		log.Warn("Expansion degraded, continuing vector-only", zap.Error(expandErr))
	}

	// RERANKED
	candidates := buildCandidates(chunks, exp.Ayahs)
	start := time.Now()
	rerankCtx, rerankCancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
	ranked, meta := s.reranker.Rerank(rerankCtx, question, candidates, s.cfg.AnswerTopK, s.cfg.PreferModel)
	rerankCancel()
	metrics.StageDuration.WithLabelValues(string(domain.StateReranked)).Observe(time.Since(start).Seconds())
	if meta.Degraded {
		metrics.DegradationsTotal.WithLabelValues("rerank").Inc()
		warnings = append(warnings, "relevance model unavailable; ordering used lexical fallback")
	}

	// EVIDENCE_RESOLVED: deterministic, in memory.
	start = time.Now()
	ranked = applyConstraints(ranked, constraints)
	items := s.buildEvidence(ranked, chunks, exp.Paths)
	density := s.resolver.Density(items)
	metrics.StageDuration.WithLabelValues(string(domain.StateEvidenceResolved)).Observe(time.Since(start).Seconds())

	// SCORED
	breakdown := s.scorer.Score(s.scoringInputs(ranked, items, density))

	if constraints.Language != "" && constraints.Language != "en" && constraints.Language != "ar" {
		warnings = append(warnings, fmt.Sprintf("language %q not available; answering in source language", constraints.Language))
	}

	ans := s.compose(runID, ranked, exp.Paths, breakdown, density, warnings)
	metrics.AnswerOutcomesTotal.WithLabelValues(string(ans.Outcome)).Inc()
	log.Info("Pipeline completed",
		zap.String("outcome", string(ans.Outcome)),
		zap.String("level", string(breakdown.Level)),
		zap.Float64("score", breakdown.FinalScore),
		zap.String("rerank_method", meta.Method),
		zap.Int("citations", len(ans.Citations)))
	return ans, nil
}

// retrieve embeds the question and runs the vector search. Any failure here
// is fatal for the request: there is no fallback for missing retrieval.
func (s *Service) retrieve(ctx context.Context, question string) ([]domain.RetrievedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(domain.StateRetrieved)).Observe(time.Since(start).Seconds())
	}()

	emb, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", domain.ErrRetrievalUnavailable, err)
	}

	chunks, err := s.searcher.Search(ctx, emb.Embedding, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", domain.ErrRetrievalUnavailable, err)
	}
	return chunks, nil
}

func (s *Service) expand(ctx context.Context, hits []domain.VectorHit) (expResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExpansionTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(domain.StateExpanded)).Observe(time.Since(start).Seconds())
	}()

	res, err := s.expander.Expand(ctx, hits, s.cfg.Expansion)
	if err != nil {
		if errors.Is(err, domain.ErrExpansionDegraded) || errors.Is(err, context.DeadlineExceeded) {
			return expResult{}, err
		}
		return expResult{}, fmt.Errorf("%w: %v", domain.ErrExpansionDegraded, err)
	}
	return expResult{Ayahs: res.Ayahs, Paths: res.Paths}, nil
}

// expResult is the slice of the expansion output the orchestrator consumes.
type expResult struct {
	Ayahs []domain.GraphNode
	Paths map[string][]string
}

// buildCandidates merges retrieved chunks with graph-expanded ayah context,
// de-duplicated by id. Chunk candidates carry their vector similarity; ayah
// candidates carry a fixed prior and no vector rank.
func buildCandidates(chunks []domain.RetrievedChunk, ayahs []domain.GraphNode) []domain.Candidate {
	seen := make(map[string]struct{}, len(chunks)+len(ayahs))
	out := make([]domain.Candidate, 0, len(chunks)+len(ayahs))

	for i, c := range chunks {
		if _, ok := seen[c.Hit.CandidateID]; ok {
			continue
		}
		seen[c.Hit.CandidateID] = struct{}{}
		out = append(out, domain.Candidate{
			ID:         c.Hit.CandidateID,
			Text:       c.Text,
			Score:      c.Hit.Similarity,
			Rank:       i,
			SourceID:   c.SourceID,
			VectorRank: c.Hit.Rank,
		})
	}
	for _, n := range ayahs {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, domain.Candidate{
			ID:         n.ID,
			Text:       n.Text(),
			Score:      ayahContextPrior,
			Rank:       len(out),
			SourceID:   n.Prop("source"),
			VectorRank: -1,
		})
	}
	return out
}

// applyConstraints filters ranked candidates by preferred sources and caps
// the number of distinct sources, preserving rank order.
func applyConstraints(ranked []domain.Candidate, c domain.Constraints) []domain.Candidate {
	out := ranked

	if len(c.PreferredSources) > 0 {
		preferred := make(map[string]struct{}, len(c.PreferredSources))
		for _, s := range c.PreferredSources {
			preferred[s] = struct{}{}
		}
		filtered := out[:0:0]
		for _, cand := range out {
			if _, ok := preferred[cand.SourceID]; ok {
				filtered = append(filtered, cand)
			}
		}
		// An empty intersection keeps the unfiltered list; the preference is
		// advisory, not a hard constraint.
		if len(filtered) > 0 {
			out = filtered
		}
	}

	if c.MaxSources > 0 {
		kept := make(map[string]struct{}, c.MaxSources)
		capped := out[:0:0]
		for _, cand := range out {
			if _, ok := kept[cand.SourceID]; !ok {
				if len(kept) >= c.MaxSources {
					continue
				}
				kept[cand.SourceID] = struct{}{}
			}
			capped = append(capped, cand)
		}
		out = capped
	}

	return out
}

// buildEvidence derives evidence items from the ranked candidates, then adds
// diversity references resolved from the verse ranges of retained chunks.
// Every item is backed by a hit or a resolved reference.
func (s *Service) buildEvidence(
	ranked []domain.Candidate, chunks []domain.RetrievedChunk, paths map[string][]string,
) []domain.EvidenceItem {
	items := make([]domain.EvidenceItem, 0, len(ranked)*2)
	retained := make(map[string]struct{}, len(ranked))

	for _, cand := range ranked {
		retained[cand.ID] = struct{}{}
		items = append(items, domain.EvidenceItem{
			ChunkID:      cand.ID,
			SourceID:     cand.SourceID,
			Relevance:    cand.Score,
			VectorRank:   cand.VectorRank,
			GraphContext: strings.Join(paths[cand.ID], "/"),
		})
	}

	var ranges []domain.AyahRange
	for _, c := range chunks {
		if _, ok := retained[c.Hit.CandidateID]; !ok {
			continue
		}
		if c.Surah == 0 || c.Start == 0 {
			continue
		}
		ranges = append(ranges, domain.AyahRange{Surah: c.Surah, Start: c.Start, End: c.End})
	}
	for _, ref := range s.resolver.ResolveWithDiversity(ranges) {
		items = append(items, domain.EvidenceItem{
			ChunkID:    ref.ChunkID,
			SourceID:   ref.SourceID,
			Relevance:  ref.Confidence,
			VectorRank: -1,
		})
	}
	return items
}

// scoringInputs maps pipeline facts onto the scorer contract. The composed
// answer is extractive with one paragraph per composable (non-empty-text)
// candidate, each carrying its own citation, so paragraph counts follow the
// composable candidate count.
func (s *Service) scoringInputs(
	ranked []domain.Candidate, items []domain.EvidenceItem, density domain.DensityMetrics,
) confidence.ScoringInputs {
	composable := 0
	for _, cand := range ranked {
		if cand.Text != "" {
			composable++
		}
	}

	valid, invalid := 0, 0
	sources := make(map[string]struct{})
	for _, it := range items {
		if it.ChunkID == "" || it.SourceID == "" {
			invalid++
			continue
		}
		valid++
		sources[it.SourceID] = struct{}{}
	}

	var relevance []float64
	for _, cand := range ranked {
		if cand.VectorRank >= 0 {
			relevance = append(relevance, cand.Score)
		}
	}

	reliability := make([]float64, 0, len(sources))
	for src := range sources {
		reliability = append(reliability, s.resolver.Reliability(src))
	}

	return confidence.ScoringInputs{
		TotalParagraphs:   composable,
		CitedParagraphs:   composable,
		ValidCitations:    valid,
		InvalidCitations:  invalid,
		RelevanceScores:   relevance,
		SourceReliability: reliability,
		DistinctChunks:    density.DistinctChunks,
		DistinctSources:   density.DistinctSources,
		DensityMet:        density.MeetsThreshold,
	}
}

// compose maps the confidence breakdown onto the terminal outcome and builds
// the payload. Refusals carry the reason and zero citations.
func (s *Service) compose(
	runID string,
	ranked []domain.Candidate,
	paths map[string][]string,
	breakdown domain.ConfidenceBreakdown,
	density domain.DensityMetrics,
	warnings []string,
) domain.Answer {
	ans := domain.Answer{
		RunID:      runID,
		Confidence: breakdown,
		Density:    density,
		Warnings:   warnings,
		Citations:  []domain.Citation{},
	}

	if breakdown.ShouldRefuse {
		ans.Outcome = domain.OutcomeRefused
		ans.Text = fmt.Sprintf("%s Reason: %s.", refusalText, breakdown.RefusalReason)
		return ans
	}

	var b strings.Builder
	for _, cand := range ranked {
		if cand.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		// Marker number is the 1-based position in the citations list, so the
		// numbering stays gapless when empty-text candidates are skipped.
		fmt.Fprintf(&b, "%s [%d]", strings.TrimSpace(cand.Text), len(ans.Citations)+1)
		ans.Citations = append(ans.Citations, domain.Citation{
			ChunkID:  cand.ID,
			SourceID: cand.SourceID,
			Score:    cand.Score,
			Path:     paths[cand.ID],
		})
	}
	ans.Text = b.String()

	switch breakdown.Level {
	case domain.LevelHigh, domain.LevelMedium:
		ans.Outcome = domain.OutcomeAnswered
	default:
		ans.Outcome = domain.OutcomeDegraded
		ans.Warnings = append(ans.Warnings,
			"confidence in this answer is limited; verify against the cited sources before relying on it")
	}
	return ans
}
