package daemon

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fraser-isbester/aurora-advisor/pkg/analyzer"
)

var (
	metricsOnce sync.Once

	cycleDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aurora_advisor_cycle_duration_seconds",
		Help: "Duration of the last advisory cycle in seconds",
	})

	cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aurora_advisor_cycles_total",
		Help: "Total number of advisory cycles completed",
	})

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurora_advisor_errors_total",
			Help: "Total number of advisory errors by type",
		},
		[]string{"error_type"},
	)

	recommendation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aurora_advisor_recommendation",
			Help: "Current sizing verdict of an instance; 1 for the active combination",
		},
		[]string{"instance", "current_class", "recommended_class", "verdict"},
	)

	candidateScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aurora_advisor_candidate_score",
			Help: "Fit score of each ranked candidate class",
		},
		[]string{"instance", "class"},
	)

	networkCeilingPct = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aurora_advisor_network_ceiling_pct",
			Help: "Peak network throughput as a percentage of the class ceiling",
		},
		[]string{"instance"},
	)

	averageActiveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aurora_advisor_average_active_sessions",
			Help: "Average active sessions over the evaluation window",
		},
		[]string{"instance"},
	)

	vcpuDemand = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aurora_advisor_vcpu_demand",
			Help: "vCPU demand of the workload envelope",
		},
		[]string{"instance"},
	)

	serverlessACUs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aurora_advisor_serverless_acus",
			Help: "Suggested serverless capacity bounds in ACUs",
		},
		[]string{"instance", "bound"},
	)
)

// InitMetrics registers the advisor metrics with the default registry
func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			cycleDuration,
			cyclesTotal,
			errorsTotal,
			recommendation,
			candidateScore,
			networkCeilingPct,
			averageActiveSessions,
			vcpuDemand,
			serverlessACUs,
		)
	})
}

// GetMetricsHandler returns the Prometheus metrics handler
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}

// noopMetricsReporter is used when metrics are disabled
type noopMetricsReporter struct{}

func (noopMetricsReporter) RecordCycleDuration(time.Duration)           {}
func (noopMetricsReporter) RecordCycleCompletion()                      {}
func (noopMetricsReporter) RecordError(string)                          {}
func (noopMetricsReporter) RecordSnapshot(*analyzer.SnapshotResult)     {}
func (noopMetricsReporter) RecordServerless(*analyzer.ServerlessResult) {}

// NewNoopMetricsReporter creates a metrics reporter that records nothing
func NewNoopMetricsReporter() MetricsReporter {
	return noopMetricsReporter{}
}

// prometheusMetricsReporter implements MetricsReporter using Prometheus metrics
type prometheusMetricsReporter struct{}

// NewPrometheusMetricsReporter registers the metrics and returns a reporter for them
func NewPrometheusMetricsReporter() MetricsReporter {
	InitMetrics()
	return prometheusMetricsReporter{}
}

func (prometheusMetricsReporter) RecordCycleDuration(duration time.Duration) {
	cycleDuration.Set(duration.Seconds())
}

func (prometheusMetricsReporter) RecordCycleCompletion() {
	cyclesTotal.Inc()
}

func (prometheusMetricsReporter) RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordSnapshot replaces the per-instance series with the latest snapshot
func (prometheusMetricsReporter) RecordSnapshot(r *analyzer.SnapshotResult) {
	id := r.Instance.ID
	labels := prometheus.Labels{"instance": id}
	recommendation.DeletePartialMatch(labels)
	candidateScore.DeletePartialMatch(labels)

	recommended := ""
	if top := r.Recommendation.Top(); top != nil {
		recommended = top.Class
	}
	recommendation.WithLabelValues(id, r.Instance.Class, recommended, string(r.Recommendation.Verdict)).Set(1)
	for _, c := range r.Recommendation.Candidates {
		candidateScore.WithLabelValues(id, c.Class).Set(c.Score)
	}

	networkCeilingPct.WithLabelValues(id).Set(r.NetworkCeiling.PctOfCeiling)
	averageActiveSessions.WithLabelValues(id).Set(r.Waits.AAS)
	vcpuDemand.WithLabelValues(id).Set(r.Envelope.VCPUs)
}

func (prometheusMetricsReporter) RecordServerless(r *analyzer.ServerlessResult) {
	id := r.Instance.ID
	serverlessACUs.WithLabelValues(id, "min").Set(r.Estimate.SuggestedMinACUs)
	serverlessACUs.WithLabelValues(id, "max").Set(r.Estimate.SuggestedMaxACUs)
	serverlessACUs.WithLabelValues(id, "average").Set(r.Estimate.Average)
}
