package domain

// AyahRange is an inclusive verse range within one surah.
type AyahRange struct {
	Surah int
	Start int
	End   int
}

// Length returns the number of verses covered by the range.
func (r AyahRange) Length() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// EvidenceReference points a logical verse range at a concrete commentary
// chunk of one source. ChunkID is derived deterministically from the
// (source, range) pair; two runs over identical input produce byte-identical
// references.
type EvidenceReference struct {
	SourceID    string
	ChunkID     string
	Range       AyahRange
	Confidence  float64
	NeedsReview bool
}

// EvidenceItem is the per-answer evidence unit consumed by the confidence
// scorer and the citation payload. Created once per pipeline run and never
// mutated afterwards. An item is always backed by a vector hit or a resolved
// reference; the pipeline never fabricates evidence.
type EvidenceItem struct {
	ChunkID      string
	SourceID     string
	Relevance    float64
	VectorRank   int // -1 for items backed by resolved references only
	GraphContext string
}

// DensityMetrics are set-cardinality facts over the evidence items of one
// answer, used as a coarse confidence signal independent of per-chunk
// relevance.
type DensityMetrics struct {
	DistinctChunks  int  `json:"distinct_chunk_count"`
	DistinctSources int  `json:"distinct_source_count"`
	MeetsThreshold  bool `json:"meets_threshold"`
}
