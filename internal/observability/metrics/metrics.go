package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgendaMetrics exposes counters/histograms for backend calls and agenda flows.
type AgendaMetrics struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	syncTotal       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	staleResponses  prometheus.Counter
}

func NewAgendaMetrics(reg prometheus.Registerer) *AgendaMetrics {
	m := &AgendaMetrics{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total calls to the appointments backend",
		}, []string{"operation", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of appointments backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Spreadsheet sync attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "status",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target and outcome",
		}, []string{"target", "outcome"}),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "board",
			Name:      "stale_responses_total",
			Help:      "List responses discarded because newer criteria superseded them",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendRequests, m.backendLatency, m.syncTotal, m.transitions, m.staleResponses)
	return m
}

// ObserveBackend records one backend call. outcome is ok, network, server or validation.
func (m *AgendaMetrics) ObserveBackend(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(operation, outcome).Inc()
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}

// ObserveSync records a sync attempt: success, unsuccessful, busy or error.
func (m *AgendaMetrics) ObserveSync(outcome string) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(outcome).Inc()
}

func (m *AgendaMetrics) ObserveTransition(target, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(target, outcome).Inc()
}

func (m *AgendaMetrics) ObserveStaleResponse() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}
