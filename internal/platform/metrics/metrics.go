// Package metrics exposes the control plane's Prometheus instrumentation:
// route-resolution latency and cache hit-rate, gate pass/block counters, and
// adapter resolution latency. Grounded on pkg/metrics/metrics.go's
// package-level Registry/MustRegister/Handler shape, trimmed from that
// lineage's per-product (functions, automation, oracle, datafeeds...)
// collectors down to the handful this control plane's own operations emit.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this package registers, kept separate from
// prometheus.DefaultRegisterer so tests can construct throwaway Registries.
var Registry = prometheus.NewRegistry()

var (
	routeResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engines_controlplane",
			Subsystem: "routing",
			Name:      "resolutions_total",
			Help:      "Total route resolutions, labeled by resource_kind and outcome (exact|tenant_env|baseline|missing).",
		},
		[]string{"resource_kind", "outcome"},
	)

	routeResolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engines_controlplane",
			Subsystem: "routing",
			Name:      "resolution_duration_seconds",
			Help:      "Duration of Registry.Resolve calls.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		},
		[]string{"resource_kind"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engines_controlplane",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total gate decisions, labeled by gate name, action, and result (pass|blocked).",
		},
		[]string{"gate", "action", "result"},
	)

	adapterResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engines_controlplane",
			Subsystem: "backend",
			Name:      "adapter_resolve_duration_seconds",
			Help:      "Duration of Factory.Resolve calls, labeled by resource_kind, backend_type, and whether the LRU cache was hit.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		},
		[]string{"resource_kind", "backend_type", "cache"},
	)
)

func init() {
	Registry.MustRegister(
		routeResolutions,
		routeResolutionDuration,
		gateDecisions,
		adapterResolveDuration,
	)
}

// ObserveRouteResolution records a single Registry.Resolve call: outcome is
// one of "exact", "tenant_env", "baseline", or "missing".
func ObserveRouteResolution(resourceKind, outcome string, duration time.Duration) {
	routeResolutions.WithLabelValues(resourceKind, outcome).Inc()
	routeResolutionDuration.WithLabelValues(resourceKind).Observe(duration.Seconds())
}

// ObserveGateDecision records a single gate evaluation.
func ObserveGateDecision(gate, action, result string) {
	gateDecisions.WithLabelValues(gate, action, result).Inc()
}

// ObserveAdapterResolve records a single Factory.Resolve call. cacheHit
// distinguishes an LRU hit from a fresh Constructor invocation.
func ObserveAdapterResolve(resourceKind, backendType string, cacheHit bool, duration time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	adapterResolveDuration.WithLabelValues(resourceKind, backendType, cache).Observe(duration.Seconds())
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
