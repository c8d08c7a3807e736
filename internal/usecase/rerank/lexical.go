package rerank

import (
	"math"
	"strings"
)

// BM25 parameters. No corpus statistics are available at rerank time, so the
// average document length is a fixed assumption from config and the score is
// normalized to [0,1] by its own saturation limit.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// lexicalScore blends token-set overlap and a BM25-style term frequency
// score into [0,1]. Deterministic: same query and text always produce the
// same score.
func lexicalScore(queryTerms []string, text string, avgDocLen float64) float64 {
	if len(queryTerms) == 0 || text == "" {
		return 0
	}

	docTerms := tokenize(text)
	if len(docTerms) == 0 {
		return 0
	}

	overlap := overlapScore(queryTerms, text, docTerms)
	bm25 := bm25Score(queryTerms, docTerms, avgDocLen)

	return 0.5*overlap + 0.5*bm25
}

// overlapScore is |query ∩ doc| / |query terms| with a bonus for verbatim
// substring containment, clamped to 1.
func overlapScore(queryTerms []string, text string, docTerms []string) float64 {
	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}

	matched := 0
	for _, t := range queryTerms {
		if _, ok := docSet[t]; ok {
			matched++
		}
	}
	score := float64(matched) / float64(len(queryTerms))

	if strings.Contains(strings.ToLower(text), strings.ToLower(strings.Join(queryTerms, " "))) {
		score += 0.2
	}
	return math.Min(1, score)
}

// bm25Score computes a per-term-saturated BM25 variant without idf (no
// corpus stats), normalized by the query term count so the result stays in
// [0,1].
func bm25Score(queryTerms, docTerms []string, avgDocLen float64) float64 {
	tf := make(map[string]float64, len(docTerms))
	for _, t := range docTerms {
		tf[t]++
	}

	lenNorm := bm25K1 * (1 - bm25B + bm25B*float64(len(docTerms))/avgDocLen)
	// Per-term maximum of the saturation curve tf*(k1+1)/(tf+lenNorm) as tf→∞.
	termMax := bm25K1 + 1

	var total float64
	for _, q := range queryTerms {
		f := tf[q]
		if f == 0 {
			continue
		}
		total += f * (bm25K1 + 1) / (f + lenNorm)
	}

	return total / (termMax * float64(len(queryTerms)))
}

// tokenize lowercases and splits on non-letter/digit runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r >= 0x0600 && r <= 0x06FF: // Arabic block
		return true
	default:
		return r > 127 && !isSpaceLike(r)
	}
}

func isSpaceLike(r rune) bool {
	switch r {
	case 0x00A0, 0x2000, 0x2001, 0x2002, 0x2003, 0x3000:
		return true
	}
	return false
}

// logistic squashes a raw model score into (0,1), saturating instead of
// overflowing at extreme magnitudes.
func logistic(x float64) float64 {
	switch {
	case x > 30:
		return 1
	case x < -30:
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
