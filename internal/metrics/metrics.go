package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments. Auth outcome counters are the
// system's structured observability for the auth path: every terminal
// outcome of every AuthService operation increments exactly one series.
type Metrics struct {
	registry *prometheus.Registry

	AuthOutcomes     *prometheus.CounterVec
	ServiceAuthTotal *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cronostudio_auth_outcomes_total",
				Help: "Terminal outcomes of auth operations",
			},
			[]string{"operation", "outcome"},
		),
		ServiceAuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cronostudio_service_auth_total",
				Help: "Webhook service-secret authentication attempts",
			},
			[]string{"outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cronostudio_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"policy"},
		),
	}

	m.registry.MustRegister(m.AuthOutcomes, m.ServiceAuthTotal, m.RateLimitedTotal)
	return m
}

// RecordAuth increments the outcome counter for one auth operation.
// outcome is "success" or the machine-readable failure code.
func (m *Metrics) RecordAuth(operation string, outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordServiceAuth(outcome string) {
	if m == nil {
		return
	}
	m.ServiceAuthTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRateLimited(policy string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(policy).Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
