package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts mark attempts by type and outcome.
type Metrics struct {
	Marks    *prometheus.CounterVec
	Distance prometheus.Histogram
}

// NewMetrics registers attendance metrics on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendo",
			Name:      "marks_total",
			Help:      "Attendance mark attempts by type and outcome.",
		}, []string{"type", "outcome"}),
		Distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendo",
			Name:      "mark_distance_km",
			Help:      "Distance from the site of each located mark attempt.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 25},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Marks, m.Distance)
	}
	return m
}

func (m *Metrics) observe(typ Type, outcome string) {
	if m == nil {
		return
	}
	m.Marks.WithLabelValues(string(typ), outcome).Inc()
}

func (m *Metrics) observeDistance(km float64) {
	if m == nil {
		return
	}
	m.Distance.Observe(km)
}
