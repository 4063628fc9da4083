// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the service records to. A nil *Registry is
// valid and records nothing.
type Registry struct {
	ValuationDuration *prometheus.HistogramVec
	PartialValuations prometheus.Counter
	CacheLookups      *prometheus.CounterVec
	CacheErrors       *prometheus.CounterVec
	Invalidations     *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a registry with the service collectors plus Go runtime and
// process collectors
func New() *Registry {
	r := &Registry{
		ValuationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valuator_valuation_duration_seconds",
				Help:    "Duration of valuation operations in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
			},
			[]string{"operation", "result"},
		),
		PartialValuations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "valuator_partial_valuations_total",
			Help: "Valuations returned without prices because the price fetch failed",
		}),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuator_performance_cache_lookups_total",
				Help: "Performance snapshot lookups by result",
			},
			[]string{"result"},
		),
		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuator_performance_cache_errors_total",
				Help: "Performance cache failures by operation",
			},
			[]string{"operation"},
		),
		Invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuator_cache_invalidations_total",
				Help: "Cache invalidation events handled by change type",
			},
			[]string{"change_type"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuator_provider_requests_total",
				Help: "Market data provider requests by provider and result",
			},
			[]string{"provider", "result"},
		),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.ValuationDuration,
		r.PartialValuations,
		r.CacheLookups,
		r.CacheErrors,
		r.Invalidations,
		r.ProviderRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveValuation records how long an operation took and whether it failed
func (r *Registry) ObserveValuation(operation string, started time.Time, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ValuationDuration.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}

// PartialValuation counts a valuation that degraded to unpriced positions
func (r *Registry) PartialValuation() {
	if r == nil {
		return
	}
	r.PartialValuations.Inc()
}

// CacheLookup counts snapshot cache hits and misses
func (r *Registry) CacheLookup(hits, misses int) {
	if r == nil {
		return
	}
	r.CacheLookups.WithLabelValues("hit").Add(float64(hits))
	r.CacheLookups.WithLabelValues("miss").Add(float64(misses))
}

// CacheError counts a failed cache operation
func (r *Registry) CacheError(operation string) {
	if r == nil {
		return
	}
	r.CacheErrors.WithLabelValues(operation).Inc()
}

// Invalidation counts a handled invalidation event
func (r *Registry) Invalidation(changeType string) {
	if r == nil {
		return
	}
	r.Invalidations.WithLabelValues(changeType).Inc()
}

// ProviderRequest counts a market data provider call
func (r *Registry) ProviderRequest(provider string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ProviderRequests.WithLabelValues(provider, result).Inc()
}
