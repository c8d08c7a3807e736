// Package confidence turns grounding evidence into an accept/degrade/refuse
// decision. Score is a pure function: no I/O, no clock, no randomness.
package confidence

import (
	"fmt"
	"math"

	"github.com/kitab-cloud/isnad/internal/config"
	"github.com/kitab-cloud/isnad/internal/domain"
)

// Penalty magnitudes for the base component. Each family of penalties is
// capped so no single defect class can zero out an otherwise well-grounded
// answer on its own.
const (
	uncitedParagraphPenalty = 0.10
	uncitedParagraphCap     = 0.30
	invalidCitationPenalty  = 0.08
	invalidCitationCap      = 0.24
	lowReliabilityPenalty   = 0.15
	lowRelevancePenalty     = 0.05
	lowRelevanceCap         = 0.20
	noPrimarySourcePenalty  = 0.10
	singleSourcePenalty     = 0.10
	unsupportedClaimPenalty = 0.07
	unsupportedClaimCap     = 0.21
	lowDensityPenalty       = 0.15

	lowReliabilityAvg   = 0.5
	lowRelevanceCutoff  = 0.3
	primarySourceCutoff = 0.8
)

// ScoringInputs is everything the scorer reads. All slices may be empty;
// empty means absent, never an error.
type ScoringInputs struct {
	TotalParagraphs   int
	CitedParagraphs   int
	ValidCitations    int
	InvalidCitations  int
	UnsupportedClaims int
	RelevanceScores   []float64 // per retrieved chunk
	SourceReliability []float64 // per cited source
	DistinctChunks    int
	DistinctSources   int
	DensityMet        bool
}

// Scorer applies the configured gates, penalties, and weights.
type Scorer struct {
	weights    config.ConfidenceWeights
	thresholds config.ConfidenceThresholds
	floors     config.ConfidenceFloors
}

// New creates a scorer. The config is assumed validated (weights sum 1.0,
// thresholds strictly decreasing).
func New(cfg config.ConfidenceConfig) *Scorer {
	return &Scorer{weights: cfg.Weights, thresholds: cfg.Thresholds, floors: cfg.Floors}
}

// Score computes the confidence breakdown. Hard refusal gates run first and
// short-circuit: any trigger yields final_score 0, level insufficient, and a
// reason. Gates are monotonic: lowering coverage, relevance, or reliability
// never un-refuses.
func (s *Scorer) Score(in ScoringInputs) domain.ConfidenceBreakdown {
	if reason := s.refusalReason(in); reason != "" {
		return domain.ConfidenceBreakdown{
			Components:    map[string]float64{},
			FinalScore:    0,
			Level:         domain.LevelInsufficient,
			ShouldRefuse:  true,
			RefusalReason: reason,
			Degradations:  []domain.Degradation{},
		}
	}

	var degradations []domain.Degradation
	base := 1.0
	apply := func(amount float64, reason string) {
		base -= amount
		degradations = append(degradations, domain.Degradation{Reason: reason, Impact: amount})
	}

	if uncited := in.TotalParagraphs - in.CitedParagraphs; uncited > 0 {
		p := capped(float64(uncited)*uncitedParagraphPenalty, uncitedParagraphCap)
		apply(p, fmt.Sprintf("%d paragraph(s) lack citations", uncited))
	}
	if in.InvalidCitations > 0 {
		p := capped(float64(in.InvalidCitations)*invalidCitationPenalty, invalidCitationCap)
		apply(p, fmt.Sprintf("%d invalid citation(s)", in.InvalidCitations))
	}

	avgReliability := mean(in.SourceReliability)
	if len(in.SourceReliability) > 0 && avgReliability < lowReliabilityAvg {
		apply(lowReliabilityPenalty, fmt.Sprintf("average source reliability %.2f is low", avgReliability))
	}
	if lowRel := countBelow(in.RelevanceScores, lowRelevanceCutoff); lowRel > 0 {
		p := capped(float64(lowRel)*lowRelevancePenalty, lowRelevanceCap)
		apply(p, fmt.Sprintf("%d low-relevance source(s)", lowRel))
	}
	if maxOf(in.SourceReliability) < primarySourceCutoff {
		apply(noPrimarySourcePenalty, "no primary authoritative source cited")
	}
	if in.DistinctSources == 1 {
		apply(singleSourcePenalty, "evidence relies on a single source")
	}
	if in.UnsupportedClaims > 0 {
		p := capped(float64(in.UnsupportedClaims)*unsupportedClaimPenalty, unsupportedClaimCap)
		apply(p, fmt.Sprintf("%d unsupported claim(s)", in.UnsupportedClaims))
	}
	if !in.DensityMet {
		apply(lowDensityPenalty, "evidence density below requirement")
	}

	base = clamp01(base)
	coverage := citationCoverage(in)
	relevance := mean(in.RelevanceScores)
	validation := validationComponent(in)
	density := 0.0
	if in.DensityMet {
		density = 1.0
	}

	components := map[string]float64{
		"base":        base,
		"coverage":    coverage,
		"reliability": avgReliability,
		"relevance":   relevance,
		"validation":  validation,
		"density":     density,
	}

	final := clamp01(s.weights.Base*base +
		s.weights.Coverage*coverage +
		s.weights.Reliability*avgReliability +
		s.weights.Relevance*relevance +
		s.weights.Validation*validation +
		s.weights.Density*density)

	level := s.classify(final)
	breakdown := domain.ConfidenceBreakdown{
		Components:   components,
		FinalScore:   final,
		Level:        level,
		Degradations: degradations,
	}
	if breakdown.Degradations == nil {
		breakdown.Degradations = []domain.Degradation{}
	}
	if level == domain.LevelInsufficient {
		breakdown.ShouldRefuse = true
		breakdown.RefusalReason = fmt.Sprintf("composite confidence %.2f below the refusal floor %.2f", final, s.thresholds.Borderline)
	}
	return breakdown
}

// refusalReason checks the hard gates in fixed order and returns the first
// triggered reason, or "" when none trigger.
func (s *Scorer) refusalReason(in ScoringInputs) string {
	totalCitations := in.ValidCitations + in.InvalidCitations
	if totalCitations == 0 {
		return "no citations support the answer"
	}
	if in.ValidCitations == 0 {
		return "all citations are invalid"
	}
	if coverage := citationCoverage(in); coverage < s.floors.MinCitationCoverage {
		return fmt.Sprintf("citation coverage %.2f below minimum %.2f", coverage, s.floors.MinCitationCoverage)
	}
	avgRel := mean(in.RelevanceScores)
	maxRel := maxOf(in.RelevanceScores)
	// A single strong chunk rescues a weak average: both must be below floor.
	if avgRel < s.floors.MinAvgRelevance && maxRel < s.floors.MinMaxRelevance {
		return fmt.Sprintf("relevance too low: average %.2f and maximum %.2f both below floor", avgRel, maxRel)
	}
	if maxOf(in.SourceReliability) < s.floors.MinMaxReliability {
		return fmt.Sprintf("no cited source reaches reliability floor %.2f", s.floors.MinMaxReliability)
	}
	if in.DistinctChunks == 0 && in.DistinctSources == 0 {
		return "no grounding evidence found"
	}
	return ""
}

// classify partitions [0,1] totally and without overlap.
func (s *Scorer) classify(score float64) domain.ConfidenceLevel {
	switch {
	case score >= s.thresholds.High:
		return domain.LevelHigh
	case score >= s.thresholds.Medium:
		return domain.LevelMedium
	case score >= s.thresholds.Low:
		return domain.LevelLow
	case score >= s.thresholds.Borderline:
		return domain.LevelBorderline
	default:
		return domain.LevelInsufficient
	}
}

func citationCoverage(in ScoringInputs) float64 {
	if in.TotalParagraphs == 0 {
		return 0
	}
	return clamp01(float64(in.CitedParagraphs) / float64(in.TotalParagraphs))
}

// validationComponent is the fraction of citations that are valid.
func validationComponent(in ScoringInputs) float64 {
	total := in.ValidCitations + in.InvalidCitations
	if total == 0 {
		return 0
	}
	return float64(in.ValidCitations) / float64(total)
}

func capped(v, limit float64) float64 {
	return math.Min(v, limit)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func countBelow(xs []float64, cutoff float64) int {
	n := 0
	for _, x := range xs {
		if x < cutoff {
			n++
		}
	}
	return n
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
