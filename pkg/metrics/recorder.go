// Package metrics provides Prometheus instrumentation for the pipeline and a
// query service for aggregating per-job usage from a Prometheus server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics are process-wide by design of the client library
var (
	stageInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoninja_stage_invocations_total",
		Help: "Collaborator invocations by stage and outcome",
	}, []string{"stage", "collaborator", "status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoninja_stage_duration_seconds",
		Help:    "Wall-clock duration of pipeline stages including throttle waits and retries",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	throttleWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoninja_throttle_wait_seconds",
		Help:    "Time spent waiting for an invocation slot",
		Buckets: []float64{0.1, 1, 5, 10, 20, 30, 60, 120},
	}, []string{"scope"})

	retryBackoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoninja_retry_backoffs_total",
		Help: "Backoff sleeps triggered by throttling failures",
	}, []string{"collaborator"})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoninja_jobs_total",
		Help: "Completed pipeline jobs by terminal status",
	}, []string{"status"})

	stageTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoninja_stage_tokens_total",
		Help: "Estimated tokens by stage and direction",
	}, []string{"stage", "type"})
)

// RecordStageInvocation counts one collaborator invocation outcome.
func RecordStageInvocation(stage, collaborator, status string) {
	stageInvocations.WithLabelValues(stage, collaborator, status).Inc()
}

// RecordStageDuration observes the full duration of a stage.
func RecordStageDuration(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordThrottleWait observes time spent blocked on the invocation throttle.
func RecordThrottleWait(scope string, d time.Duration) {
	throttleWait.WithLabelValues(scope).Observe(d.Seconds())
}

// RecordRetryBackoff counts one backoff sleep for a collaborator.
func RecordRetryBackoff(collaborator string) {
	retryBackoffs.WithLabelValues(collaborator).Inc()
}

// RecordJobCompletion counts a job reaching a terminal status.
func RecordJobCompletion(status string) {
	jobsCompleted.WithLabelValues(status).Inc()
}

// RecordStageTokens counts estimated tokens for a stage. typ is "input" or
// "output".
func RecordStageTokens(stage, typ string, tokens int) {
	stageTokens.WithLabelValues(stage, typ).Add(float64(tokens))
}
