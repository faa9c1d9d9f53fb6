// Package metrics records load cycle outcomes in a prometheus registry that
// can be written out for the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry    *prometheus.Registry
	cycles      *prometheus.CounterVec
	duration    prometheus.Histogram
	rows        *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfsreload_load_cycles_total",
			Help: "Load cycles by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gtfsreload_load_duration_seconds",
			Help:    "Time spent in the load transaction.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gtfsreload_rows_loaded",
			Help: "Rows inserted per table by the last successful load.",
		}, []string{"table"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfsreload_last_success_timestamp_seconds",
			Help: "Unix time of the last successful load.",
		}),
	}
	m.registry.MustRegister(m.cycles, m.duration, m.rows, m.lastSuccess)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSuccess records a committed load.
func (m *Metrics) ObserveSuccess(duration time.Duration, rows map[string]int, at time.Time) {
	m.cycles.WithLabelValues("success").Inc()
	m.duration.Observe(duration.Seconds())
	for table, n := range rows {
		m.rows.WithLabelValues(table).Set(float64(n))
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

// ObserveFailure records a cycle that ended without committing.
func (m *Metrics) ObserveFailure(duration time.Duration) {
	m.cycles.WithLabelValues("failure").Inc()
	if duration > 0 {
		m.duration.Observe(duration.Seconds())
	}
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
