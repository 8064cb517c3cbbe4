package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleMetricsRegistry records JSON-RPC module activity.
type ModuleMetricsRegistry struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *ModuleMetricsRegistry
)

// ModuleMetrics returns the lazily-initialised metrics registry used to
// record RPC module activity.
func ModuleMetrics() *ModuleMetricsRegistry {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &ModuleMetricsRegistry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bond",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bond",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total failed JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bond",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC module request latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.errors, moduleRegistry.latency)
	})
	return moduleRegistry
}

// Observe records one completed module request.
func (r *ModuleMetricsRegistry) Observe(module, method string, start time.Time, err error) {
	if r == nil {
		return
	}
	module = normalizeLabel(module)
	method = normalizeLabel(method)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.errors.WithLabelValues(module, method).Inc()
	}
	r.requests.WithLabelValues(module, method, outcome).Inc()
	r.latency.WithLabelValues(module, method).Observe(time.Since(start).Seconds())
}

func normalizeLabel(label string) string {
	trimmed := strings.TrimSpace(strings.ToLower(label))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
