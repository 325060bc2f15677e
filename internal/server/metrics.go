package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the server's collectors on a private registry so several
// servers can live in one process.
type metrics struct {
	registry *prometheus.Registry

	// analyses counts completed analyses. Labels: mode, decision.
	analyses *prometheus.CounterVec
	// analysisLatency measures Analyzer.Run. Labels: mode.
	analysisLatency *prometheus.HistogramVec
	// providerFetches counts provider calls. Labels: provider, outcome.
	providerFetches *prometheus.CounterVec
	// beaconEvents counts stored beacon events. Labels: kind.
	beaconEvents *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &metrics{
		registry: reg,
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launch_goat",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Completed analyses by mode and decision",
		}, []string{"mode", "decision"}),
		analysisLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "launch_goat",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"mode"}),
		providerFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launch_goat",
			Subsystem: "provider",
			Name:      "fetches_total",
			Help:      "Provider fetches by provider and outcome",
		}, []string{"provider", "outcome"}),
		beaconEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launch_goat",
			Subsystem: "beacon",
			Name:      "events_total",
			Help:      "Beacon events recorded by kind",
		}, []string{"kind"}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
