package domain

// PipelineState tracks a run through the answering pipeline.
type PipelineState string

// Pipeline states in transition order.
const (
	StateRetrieved        PipelineState = "RETRIEVED"
	StateExpanded         PipelineState = "EXPANDED"
	StateReranked         PipelineState = "RERANKED"
	StateEvidenceResolved PipelineState = "EVIDENCE_RESOLVED"
	StateScored           PipelineState = "SCORED"
)

// Outcome is the terminal pipeline state.
type Outcome string

// Terminal outcomes. Refused is a normal business outcome, not an error.
const (
	OutcomeAnswered Outcome = "answered"
	OutcomeDegraded Outcome = "degraded"
	OutcomeRefused  Outcome = "refused"
)

// Constraints narrow an Answer call.
type Constraints struct {
	Language         string
	MaxSources       int
	PreferredSources []string
}

// Citation is one answer-level evidence pointer shown to the caller.
type Citation struct {
	ChunkID  string   `json:"chunk_id"`
	SourceID string   `json:"source_id"`
	Score    float64  `json:"score"`
	Path     []string `json:"path,omitempty"`
}

// Answer is the final structured result of one pipeline run.
type Answer struct {
	RunID      string              `json:"run_id"`
	Outcome    Outcome             `json:"outcome"`
	Text       string              `json:"text"`
	Citations  []Citation          `json:"citations"`
	Confidence ConfidenceBreakdown `json:"confidence"`
	Density    DensityMetrics      `json:"evidence_density"`
	Warnings   []string            `json:"warnings,omitempty"`
}
