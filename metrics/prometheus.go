package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder records metrics using Prometheus.
type PrometheusRecorder struct {
	registry              prometheus.Gatherer
	loginAttemptsTotal    *prometheus.CounterVec
	logoutsTotal          *prometheus.CounterVec
	stateTransitionsTotal *prometheus.CounterVec
	invalidationsTotal    prometheus.Counter
}

// NewPrometheusRecorder registers the collectors on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWithRegistry(prometheus.NewRegistry())
}

// NewPrometheusRecorderWithRegistry registers the collectors on reg.
func NewPrometheusRecorderWithRegistry(reg *prometheus.Registry) *PrometheusRecorder {
	loginAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synofs_login_attempts_total",
		Help: "Total login attempts against the remote service",
	}, []string{"result"})

	logoutsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synofs_logouts_total",
		Help: "Total logouts, by whether the remote confirmed the session end",
	}, []string{"remote"})

	stateTransitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synofs_session_state_transitions_total",
		Help: "Total session state machine transitions",
	}, []string{"from", "to"})

	invalidationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "synofs_session_invalidations_total",
		Help: "Total sessions dropped after the remote rejected the token",
	})

	reg.MustRegister(
		loginAttemptsTotal,
		logoutsTotal,
		stateTransitionsTotal,
		invalidationsTotal,
	)

	return &PrometheusRecorder{
		registry:              reg,
		loginAttemptsTotal:    loginAttemptsTotal,
		logoutsTotal:          logoutsTotal,
		stateTransitionsTotal: stateTransitionsTotal,
		invalidationsTotal:    invalidationsTotal,
	}
}

func (p *PrometheusRecorder) RecordLoginAttempt(result string) {
	p.loginAttemptsTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) RecordLogout(remoteConfirmed bool) {
	remote := "failed"
	if remoteConfirmed {
		remote = "confirmed"
	}
	p.logoutsTotal.WithLabelValues(remote).Inc()
}

func (p *PrometheusRecorder) RecordStateTransition(from, to string) {
	p.stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (p *PrometheusRecorder) RecordSessionInvalidated() {
	p.invalidationsTotal.Inc()
}

// WriteTextfile dumps the current values in the node_exporter textfile format.
// Short-lived CLI runs use this instead of serving /metrics.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

var _ Recorder = (*PrometheusRecorder)(nil)
