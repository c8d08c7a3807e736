package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the isnad API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Scorer     ScorerConfig     `yaml:"scorer"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Expansion  ExpansionConfig  `yaml:"expansion"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds query embedder settings (OpenAI-compatible endpoint).
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ScorerConfig holds relevance-model (cross-encoder) client settings.
// An empty BaseURL disables the model; the reranker then always uses the
// deterministic lexical fallback.
type ScorerConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// RetrievalConfig holds vector search settings.
type RetrievalConfig struct {
	Collection string `yaml:"collection"`
	TopK       int    `yaml:"top_k"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

// ExpansionConfig holds graph expansion bounds.
type ExpansionConfig struct {
	MaxDepth            int  `yaml:"max_depth"`
	MaxNeighborsPerNode int  `yaml:"max_neighbors_per_node"`
	IncludeTimeline     bool `yaml:"include_timeline"`
	IncludeThematic     bool `yaml:"include_thematic"`
	IncludeEntities     bool `yaml:"include_entities"`
	TimeoutMS           int  `yaml:"timeout_ms"`
}

// RerankConfig holds reranker settings.
type RerankConfig struct {
	PreferModel      bool    `yaml:"prefer_model"`
	BatchSize        int     `yaml:"batch_size"`
	MaxTextLen       int     `yaml:"max_text_len"`
	LexicalWeight    float64 `yaml:"lexical_weight"`
	AssumedAvgDocLen float64 `yaml:"assumed_avg_doc_len"`
	TimeoutMS        int     `yaml:"timeout_ms"`
}

// SourceConfig describes one tafsir source in the catalogue.
type SourceConfig struct {
	ID          string  `yaml:"id"`
	Reliability float64 `yaml:"reliability"`
	Primary     bool    `yaml:"primary"`
}

// EvidenceConfig holds the source catalogue and density thresholds.
type EvidenceConfig struct {
	Sources            []SourceConfig `yaml:"sources"`
	MinDistinctSources int            `yaml:"min_distinct_sources"`
	MinDistinctChunks  int            `yaml:"min_distinct_chunks"`
	MinDensity         float64        `yaml:"min_density"`
}

// ConfidenceWeights are the fixed weighted-average weights; they must sum to 1.0.
type ConfidenceWeights struct {
	Base        float64 `yaml:"base"`
	Coverage    float64 `yaml:"coverage"`
	Reliability float64 `yaml:"reliability"`
	Relevance   float64 `yaml:"relevance"`
	Validation  float64 `yaml:"validation"`
	Density     float64 `yaml:"density"`
}

// Sum returns the total of all weights.
func (w ConfidenceWeights) Sum() float64 {
	return w.Base + w.Coverage + w.Reliability + w.Relevance + w.Validation + w.Density
}

// ConfidenceThresholds are the strictly decreasing level boundaries.
// Scores below Borderline hard-refuse.
type ConfidenceThresholds struct {
	High       float64 `yaml:"high"`
	Medium     float64 `yaml:"medium"`
	Low        float64 `yaml:"low"`
	Borderline float64 `yaml:"borderline"`
}

// ConfidenceFloors are the hard refusal gates checked before any scoring.
type ConfidenceFloors struct {
	MinCitationCoverage float64 `yaml:"min_citation_coverage"`
	MinAvgRelevance     float64 `yaml:"min_avg_relevance"`
	MinMaxRelevance     float64 `yaml:"min_max_relevance"`
	MinMaxReliability   float64 `yaml:"min_max_reliability"`
}

// ConfidenceConfig holds confidence scorer settings.
type ConfidenceConfig struct {
	Weights    ConfidenceWeights    `yaml:"weights"`
	Thresholds ConfidenceThresholds `yaml:"thresholds"`
	Floors     ConfidenceFloors     `yaml:"floors"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	DeadlineMS int `yaml:"deadline_ms"`
	AnswerTopK int `yaml:"answer_top_k"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Retrieval.Collection == "" {
		c.Retrieval.Collection = "tafsir_chunks"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 20
	}
	if c.Retrieval.TimeoutMS <= 0 {
		c.Retrieval.TimeoutMS = 2000
	}
	if c.Scorer.TimeoutMS <= 0 {
		c.Scorer.TimeoutMS = 3000
	}
	if c.Expansion.MaxDepth <= 0 {
		c.Expansion.MaxDepth = 1
	}
	if c.Expansion.MaxNeighborsPerNode < 0 {
		c.Expansion.MaxNeighborsPerNode = 0
	}
	if c.Expansion.TimeoutMS <= 0 {
		c.Expansion.TimeoutMS = 2000
	}
	if c.Rerank.BatchSize <= 0 {
		c.Rerank.BatchSize = 32
	}
	if c.Rerank.MaxTextLen <= 0 {
		c.Rerank.MaxTextLen = 512
	}
	if c.Rerank.LexicalWeight <= 0 {
		c.Rerank.LexicalWeight = 0.3
	}
	if c.Rerank.AssumedAvgDocLen <= 0 {
		c.Rerank.AssumedAvgDocLen = 200
	}
	if c.Rerank.TimeoutMS <= 0 {
		c.Rerank.TimeoutMS = 3000
	}
	if c.Evidence.MinDistinctSources <= 0 {
		c.Evidence.MinDistinctSources = 2
	}
	if c.Evidence.MinDistinctChunks <= 0 {
		c.Evidence.MinDistinctChunks = 2
	}
	if c.Evidence.MinDensity <= 0 {
		c.Evidence.MinDensity = 0.5
	}
	if c.Confidence.Weights == (ConfidenceWeights{}) {
		c.Confidence.Weights = ConfidenceWeights{
			Base: 0.35, Coverage: 0.15, Reliability: 0.15,
			Relevance: 0.15, Validation: 0.10, Density: 0.10,
		}
	}
	if c.Confidence.Thresholds == (ConfidenceThresholds{}) {
		c.Confidence.Thresholds = ConfidenceThresholds{
			High: 0.75, Medium: 0.60, Low: 0.45, Borderline: 0.30,
		}
	}
	if c.Confidence.Floors == (ConfidenceFloors{}) {
		c.Confidence.Floors = ConfidenceFloors{
			MinCitationCoverage: 0.3,
			MinAvgRelevance:     0.25,
			MinMaxRelevance:     0.3,
			MinMaxReliability:   0.4,
		}
	}
	if c.Pipeline.DeadlineMS <= 0 {
		c.Pipeline.DeadlineMS = 10000
	}
	if c.Pipeline.AnswerTopK <= 0 {
		c.Pipeline.AnswerTopK = 8
	}
}

// Validate checks the configuration for correctness. A failure here is fatal:
// the process must not serve traffic with inconsistent thresholds or weights.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if sum := c.Confidence.Weights.Sum(); math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("confidence.weights must sum to 1.0, got %g", sum)
	}
	t := c.Confidence.Thresholds
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low > t.Borderline && t.Borderline > 0) {
		return fmt.Errorf(
			"confidence.thresholds must be strictly decreasing and positive, got %.2f/%.2f/%.2f/%.2f",
			t.High, t.Medium, t.Low, t.Borderline,
		)
	}
	for i, s := range c.Evidence.Sources {
		if s.ID == "" {
			return fmt.Errorf("evidence.sources[%d].id is required", i)
		}
		if s.Reliability < 0 || s.Reliability > 1 {
			return fmt.Errorf("evidence.sources[%d].reliability must be in [0,1], got %g", i, s.Reliability)
		}
	}
	if c.Rerank.LexicalWeight < 0 || c.Rerank.LexicalWeight > 1 {
		return fmt.Errorf("rerank.lexical_weight must be in [0,1], got %g", c.Rerank.LexicalWeight)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
