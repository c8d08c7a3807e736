package domain

// ConfidenceLevel classifies the final confidence score into an ordered band.
type ConfidenceLevel string

// Levels, highest first. Borderline still answers but with mandatory strong
// caveats; Insufficient refuses.
const (
	LevelHigh         ConfidenceLevel = "high"
	LevelMedium       ConfidenceLevel = "medium"
	LevelLow          ConfidenceLevel = "low"
	LevelBorderline   ConfidenceLevel = "borderline"
	LevelInsufficient ConfidenceLevel = "insufficient"
)

// Degradation is one itemized reason confidence was reduced, tagged with its
// score impact so logs and UIs can explain the final number.
type Degradation struct {
	Reason string  `json:"reason"`
	Impact float64 `json:"impact"`
}

// ConfidenceBreakdown is the scorer output. Computed once per answer and
// read-only after creation. ShouldRefuse implies the answer payload carries
// no citations and an explicit refusal reason.
type ConfidenceBreakdown struct {
	Components    map[string]float64 `json:"component_scores"`
	FinalScore    float64            `json:"final_score"`
	Level         ConfidenceLevel    `json:"level"`
	ShouldRefuse  bool               `json:"should_refuse"`
	RefusalReason string             `json:"refusal_reason,omitempty"`
	Degradations  []Degradation      `json:"degradation_reasons"`
}
