// Package metrics exposes prometheus counters for the SSO handshake.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation names used as label values.
const (
	OperationIssue         = "issue"
	OperationAcknowledge   = "acknowledge"
	OperationSignOut       = "signout"
	OperationHeaderRefresh = "header_refresh"
	OperationCallback      = "callback"
	OperationExpiry        = "expiry"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder counts backend calls and session transitions.
type Recorder struct {
	calls       *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewRecorder registers the counters on registerer.
// A nil registerer creates unregistered counters.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	factory := promauto.With(registerer)

	return &Recorder{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sso_keeper_backend_calls_total",
			Help: "Total number of SSO backend calls",
		}, []string{"operation", "result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sso_keeper_session_transitions_total",
			Help: "Total number of session state changes by cause",
		}, []string{"operation"}),
	}
}

// ObserveCall counts a backend call; a nil error is a success.
func (r *Recorder) ObserveCall(operation string, err error) {
	if r == nil {
		return
	}

	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}

	r.calls.WithLabelValues(operation, result).Inc()
}

// ObserveTransition counts a session state change caused by operation.
func (r *Recorder) ObserveTransition(operation string) {
	if r == nil {
		return
	}

	r.transitions.WithLabelValues(operation).Inc()
}
