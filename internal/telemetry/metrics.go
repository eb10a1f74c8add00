// Package telemetry holds process metrics. They are served from a separate
// ops listener, never from the honeypot port: a /metrics endpoint on the
// deception surface would unmask the whole thing.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts inbound HTTP requests by impersonated surface.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawtrap",
			Name:      "http_requests_total",
			Help:      "Total inbound HTTP requests by channel surface",
		},
		[]string{"channel"},
	)

	// WSMessages counts WebSocket frames by direction.
	WSMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawtrap",
			Name:      "ws_messages_total",
			Help:      "Total WebSocket frames by direction",
		},
		[]string{"direction"},
	)

	// SuspiciousHits counts classifier matches by category.
	SuspiciousHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawtrap",
			Name:      "suspicious_hits_total",
			Help:      "Total classifier hits by attack category",
		},
		[]string{"category"},
	)

	// LiveConnections tracks currently open WebSocket connections.
	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clawtrap",
			Name:      "live_connections",
			Help:      "Currently open WebSocket connections",
		},
	)

	registerOnce sync.Once
)

// Register installs the metrics into the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequests, WSMessages, SuspiciousHits, LiveConnections)
	})
}

// Handler returns the Prometheus scrape handler for the ops listener.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
