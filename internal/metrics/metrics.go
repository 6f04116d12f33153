package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CallMetrics exposes the operational counters for the call lifecycle.
// Labels use destination ids, not phone numbers, to keep user-adjacent
// data out of the metrics endpoint.
type CallMetrics struct {
	CallsStarted   *prometheus.CounterVec
	CallsEnded     *prometheus.CounterVec
	ConnectSeconds *prometheus.HistogramVec
	CostCents      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		CallsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calls_started_total",
			Help: "Outbound calls accepted by the telephony provider.",
		}, []string{"our_number"}),
		CallsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calls_ended_total",
			Help: "Hangup webhooks processed, by terminal outcome.",
		}, []string{"outcome"}),
		ConnectSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_connect_seconds",
			Help:    "Time a user spent bridged to a destination.",
			Buckets: []float64{5, 10, 30, 60, 120, 300, 600},
		}, []string{"destination_id"}),
		CostCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "call_cost_cents_total",
			Help: "Provider-reported call cost, in hundredths of a cent.",
		}, []string{"destination_id"}),
	}
	reg.MustRegister(m.CallsStarted, m.CallsEnded, m.ConnectSeconds, m.CostCents)
	return m
}
