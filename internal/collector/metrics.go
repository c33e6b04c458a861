// internal/collector/metrics.go
package collector

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the collector ingests
type Metrics struct {
	Items          *prometheus.CounterVec
	Rows           *prometheus.CounterVec
	DecodeFailures *prometheus.CounterVec
}

// NewMetrics creates the collector metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rowdelta",
			Name:      "ingested_items_total",
			Help:      "Log items received, by outcome",
		}, []string{"outcome"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rowdelta",
			Name:      "ingested_rows_total",
			Help:      "Changed rows stored, by action",
		}, []string{"action"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rowdelta",
			Name:      "decode_failures_total",
			Help:      "Documents rejected as malformed, by endpoint",
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.Items, m.Rows, m.DecodeFailures)
	return m
}
