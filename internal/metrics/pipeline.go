package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "isnad",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	AnswerOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isnad",
			Name:      "answer_outcomes_total",
			Help:      "Total answers by terminal outcome",
		},
		[]string{"outcome"},
	)

	RerankRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isnad",
			Name:      "rerank_requests_total",
			Help:      "Total rerank calls by scoring method",
		},
		[]string{"method", "status"},
	)

	RerankDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "isnad",
			Name:      "rerank_duration_seconds",
			Help:      "Rerank duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"method"},
	)

	ExpansionNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isnad",
			Name:      "expansion_nodes_total",
			Help:      "Graph nodes collected during expansion, by category",
		},
		[]string{"category"},
	)

	DegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isnad",
			Name:      "pipeline_degradations_total",
			Help:      "Degraded-mode continuations by stage",
		},
		[]string{"stage"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(AnswerOutcomesTotal)
	prometheus.MustRegister(RerankRequestsTotal)
	prometheus.MustRegister(RerankDuration)
	prometheus.MustRegister(ExpansionNodesTotal)
	prometheus.MustRegister(DegradationsTotal)
	pipelineMetricsRegistered = true
}
