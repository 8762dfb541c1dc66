package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkpulse_retry_attempts_total",
			Help: "Retry attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	breakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkpulse_circuit_breaker_state_changes_total",
			Help: "Circuit breaker transitions by breaker and new state",
		},
		[]string{"breaker", "state"},
	)
)

// RecordRetryAttempt records a single attempt outcome for an operation.
func RecordRetryAttempt(operation string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	retryAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordBreakerStateChange records a circuit breaker state transition.
func RecordBreakerStateChange(breaker, state string) {
	breakerStateChanges.WithLabelValues(breaker, state).Inc()
}
