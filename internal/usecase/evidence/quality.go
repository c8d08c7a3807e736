package evidence

import "github.com/kitab-cloud/isnad/internal/domain"

// QualityTier is advisory metadata for downstream review, not a refusal gate.
type QualityTier string

const (
	TierStrong   QualityTier = "strong"
	TierModerate QualityTier = "moderate"
	TierWeak     QualityTier = "weak"
)

// QualityReport summarizes how well a story's events are grounded.
type QualityReport struct {
	DistinctSources int
	DistinctChunks  int
	Density         float64
	Tier            QualityTier
}

// Quality classifies the grounding of a story given its event counts and
// resolved references. Density is grounded_events / total_events.
func (r *Resolver) Quality(totalEvents, groundedEvents int, refs []domain.EvidenceReference) QualityReport {
	sources := make(map[string]struct{}, len(refs))
	chunks := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		sources[ref.SourceID] = struct{}{}
		chunks[ref.ChunkID] = struct{}{}
	}

	var density float64
	if totalEvents > 0 {
		density = float64(groundedEvents) / float64(totalEvents)
	}

	report := QualityReport{
		DistinctSources: len(sources),
		DistinctChunks:  len(chunks),
		Density:         density,
		Tier:            TierWeak,
	}

	switch {
	case report.DistinctSources >= 3 && density >= 0.8:
		report.Tier = TierStrong
	case report.DistinctSources >= r.minSources &&
		report.DistinctChunks >= r.minChunks &&
		density >= r.minDensity:
		report.Tier = TierModerate
	}

	return report
}

// Coverage computes the fraction of a story's verses covered by evidence via
// interval overlap. Pure set/interval arithmetic, clamped to [0,1] of the
// total verse count.
func Coverage(storyRanges, evidenceRanges []domain.AyahRange) float64 {
	total := 0
	for _, sr := range storyRanges {
		total += sr.Length()
	}
	if total == 0 {
		return 0
	}

	covered := 0
	for _, sr := range storyRanges {
		for _, er := range evidenceRanges {
			if sr.Surah != er.Surah {
				continue
			}
			overlap := min(sr.End, er.End) - max(sr.Start, er.Start) + 1
			if overlap > 0 {
				covered += overlap
			}
		}
	}

	frac := float64(covered) / float64(total)
	if frac > 1 {
		return 1
	}
	return frac
}
