// Package metrics exposes Prometheus collectors describing the playback lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultTimeout   = "timeout"
	ResultDiscarded = "discarded"
)

var (
	// AttemptsTotal counts finished play attempts by outcome.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_attempts_total",
		Help: "Total number of play attempts by result",
	}, []string{"result"})

	// FirstFrameLatency tracks the time from load to the first rendered frame of successful attempts.
	FirstFrameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livewatch_first_frame_latency_seconds",
		Help:    "Time from load to first rendered frame",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	})

	// RetriesTotal counts scheduled retries.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_retries_total",
		Help: "Total number of retries started after a failed attempt",
	})

	// TeardownFailuresTotal counts swallowed stop and destroy errors.
	TeardownFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_teardown_failures_total",
		Help: "Total number of player stop/destroy calls that failed during teardown",
	}, []string{"op"})

	// TriggersTotal counts entry triggers by kind and whether they started a cycle.
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_triggers_total",
		Help: "Total number of entry triggers by kind and outcome",
	}, []string{"trigger", "outcome"})

	// ControllerState is 1 for the state the controller is in and 0 otherwise.
	ControllerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livewatch_controller_state",
		Help: "Current lifecycle state of the playback controller",
	}, []string{"state"})

	// Unavailable is 1 while retries are exhausted.
	Unavailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_stream_unavailable",
		Help: "Whether the stream was marked unavailable after exhausting retries",
	})
)

// ObserveAttempt records the outcome of one attempt.
func ObserveAttempt(result string, elapsed time.Duration) {
	AttemptsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		FirstFrameLatency.Observe(elapsed.Seconds())
	}
}

// IncRetry records a retry.
func IncRetry() {
	RetriesTotal.Inc()
}

// IncTeardownFailure records a swallowed teardown error for op ("stop" or "destroy").
func IncTeardownFailure(op string) {
	TeardownFailuresTotal.WithLabelValues(op).Inc()
}

// IncTrigger records an entry trigger and whether it started a cycle.
func IncTrigger(trigger string, started bool) {
	outcome := "skipped"
	if started {
		outcome = "started"
	}
	TriggersTotal.WithLabelValues(trigger, outcome).Inc()
}

// SetState marks state as current among all states.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ControllerState.WithLabelValues(s).Set(v)
	}
}

// SetUnavailable records the unavailable flag.
func SetUnavailable(v bool) {
	if v {
		Unavailable.Set(1)
		return
	}
	Unavailable.Set(0)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
