package appservice

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// gatewayMetrics carries the gateway's Prometheus instruments on a
// private registry, so running several gateways in one process does not
// collide on metric names.
type gatewayMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newGatewayMetrics() *gatewayMetrics {
	m := &gatewayMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appservice",
			Name:      "requests_total",
			Help:      "Gateway requests by method and status code.",
		}, []string{"method", "code"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "appservice",
			Name:      "requests_in_flight",
			Help:      "Gateway requests currently being served.",
		}),
	}
	m.registry.MustRegister(m.requests, m.inFlight)
	return m
}

func (m *gatewayMetrics) observe(r *http.Request, status int) {
	m.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
}

func (m *gatewayMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
