package metrics

import "github.com/prometheus/client_golang/prometheus"

// GuardMetrics exposes counters/histograms for the chat guard pipeline and
// the query gate.
type GuardMetrics struct {
	guardChecks       *prometheus.CounterVec
	classifierLatency prometheus.Histogram
	queryGateTotal    *prometheus.CounterVec
	chatTurns         *prometheus.CounterVec
}

func NewGuardMetrics(reg prometheus.Registerer) *GuardMetrics {
	m := &GuardMetrics{
		guardChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "guard",
			Name:      "checks_total",
			Help:      "Guard pipeline stage outcomes",
		}, []string{"stage", "outcome"}),
		classifierLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "guard",
			Name:      "classifier_latency_seconds",
			Help:      "Latency of external injection classifier calls",
			Buckets:   prometheus.DefBuckets,
		}),
		queryGateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "chat",
			Name:      "querygate_total",
			Help:      "Query gate dispositions",
		}, []string{"outcome"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Completed chat turns by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.guardChecks, m.classifierLatency, m.queryGateTotal, m.chatTurns)
	return m
}

func (m *GuardMetrics) ObserveGuardCheck(stage, outcome string) {
	if m == nil {
		return
	}
	m.guardChecks.WithLabelValues(stage, outcome).Inc()
}

func (m *GuardMetrics) ObserveClassifierLatency(seconds float64) {
	if m == nil {
		return
	}
	m.classifierLatency.Observe(seconds)
}

func (m *GuardMetrics) ObserveQueryGate(outcome string) {
	if m == nil {
		return
	}
	m.queryGateTotal.WithLabelValues(outcome).Inc()
}

func (m *GuardMetrics) ObserveChatTurn(result string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(result).Inc()
}
