package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for the lifecycle core
type Metrics struct {
	ChecksTotal    *prometheus.CounterVec
	ProbeFailures  prometheus.Counter
	ProviderErrors *prometheus.CounterVec
	ReconcileRuns  *prometheus.CounterVec
	ActiveProxies  prometheus.Gauge
}

// New registers and returns the lifecycle metrics
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfleet_checks_total",
			Help: "Proxy status checks, by provider and result.",
		}, []string{"provider", "result"}),
		ProbeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "proxyfleet_probe_failures_total",
			Help: "Health probes that failed or reported a wrong egress IP.",
		}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfleet_provider_errors_total",
			Help: "Provider API failures, by provider and operation.",
		}, []string{"provider", "operation"}),
		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyfleet_reconcile_runs_total",
			Help: "Reconciliation passes, by provider and result.",
		}, []string{"provider", "result"}),
		ActiveProxies: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proxyfleet_active_proxies",
			Help: "Number of proxies currently active.",
		}),
	}
}

// NewUnregistered returns metrics backed by a private registry, for tests
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
