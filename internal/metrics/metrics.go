// Package metrics contains the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	// Inbound requests by method, path and status.
	Requests *prometheus.CounterVec

	// Upstream call outcomes: ok, config_error, transport_error.
	Upstream *prometheus.CounterVec

	// Streams currently being bridged to a client.
	ActiveStreams prometheus.Gauge
}

// New registers the collectors with reg and returns them. Tests pass a
// fresh prometheus.NewRegistry to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_requests_total",
				Help: "Total number of inbound HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		Upstream: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_upstream_requests_total",
				Help: "Total number of upstream provider calls by outcome",
			},
			[]string{"outcome"},
		),

		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelgate_active_streams",
				Help: "Number of SSE streams currently bridged to clients",
			},
		),
	}
}

// Handler returns the exposition endpoint for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
