package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	submissionsTotal    prometheus.Counter
	submissionsAccepted prometheus.Counter
	submissionsRejected prometheus.Counter
	submissionsFailed   prometheus.Counter
	executionTime       prometheus.Histogram
	pipelineDuration    prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors for grading
// observability.
func RegisterMetrics() {
	registerOnce.Do(func() {
		submissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "juez_submissions_total",
			Help: "Total number of submission jobs picked up.",
		})
		submissionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "juez_submissions_accepted_total",
			Help: "Number of submissions graded accepted.",
		})
		submissionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "juez_submissions_rejected_total",
			Help: "Number of submissions graded wrong_answer.",
		})
		submissionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "juez_submissions_failed_total",
			Help: "Number of submissions that ended in an error verdict.",
		})
		executionTime = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "juez_execution_time_ms",
			Help:    "Runner-reported cumulative execution time per submission.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		})
		pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "juez_pipeline_duration_seconds",
			Help:    "Wall time of the whole grading pipeline per submission.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			submissionsTotal,
			submissionsAccepted,
			submissionsRejected,
			submissionsFailed,
			executionTime,
			pipelineDuration,
		)
	})
}

// GradingMetrics reports grading outcomes to Prometheus. It satisfies
// the worker's metrics interface. Every method registers the collectors
// on first use, so the zero value is as safe as the constructed one.
type GradingMetrics struct{}

// NewGradingMetrics registers the collectors and returns the sink.
func NewGradingMetrics() GradingMetrics {
	RegisterMetrics()
	return GradingMetrics{}
}

func (GradingMetrics) IncTotal() {
	RegisterMetrics()
	submissionsTotal.Inc()
}

func (GradingMetrics) IncAccepted() {
	RegisterMetrics()
	submissionsAccepted.Inc()
}

func (GradingMetrics) IncRejected() {
	RegisterMetrics()
	submissionsRejected.Inc()
}

func (GradingMetrics) IncFailed() {
	RegisterMetrics()
	submissionsFailed.Inc()
}

func (GradingMetrics) RecordExecutionTime(ms int64) {
	RegisterMetrics()
	executionTime.Observe(float64(ms))
}

func (GradingMetrics) ObservePipelineDuration(d time.Duration) {
	RegisterMetrics()
	pipelineDuration.Observe(d.Seconds())
}
