// Package metrics provides Prometheus metrics for the pharmacy API.
// HTTP metrics follow the usual counter/histogram/in-flight trio; on top
// of those the package tracks dataset freshness gauges, result-cache
// traffic and which matching method resolved each comuna query.
//
// All metrics are automatically registered with the Prometheus default
// registry during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	DatasetPharmacies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_pharmacies_total",
			Help: "Pharmacies in the active dataset snapshot",
		},
	)

	DatasetOnDuty = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_on_duty_total",
			Help: "On-duty pharmacies in the active dataset snapshot",
		},
	)

	DatasetComunas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_comunas_total",
			Help: "Distinct comunas in the active dataset snapshot",
		},
	)

	DatasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_age_seconds",
			Help: "Seconds since the active dataset snapshot was swapped in",
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "result_cache_hits_total",
			Help: "Result cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "result_cache_misses_total",
			Help: "Result cache misses, including backend errors degraded to a miss",
		},
	)

	ResolverMethodTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_method_total",
			Help: "Comuna resolutions by matching method",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(DatasetPharmacies)
	prometheus.MustRegister(DatasetOnDuty)
	prometheus.MustRegister(DatasetComunas)
	prometheus.MustRegister(DatasetAgeSeconds)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ResolverMethodTotal)
}

// ObserveDataset refreshes the dataset gauges after a snapshot swap or
// from the staleness monitor.
func ObserveDataset(pharmacies, onDuty, comunas int, ageSeconds float64) {
	DatasetPharmacies.Set(float64(pharmacies))
	DatasetOnDuty.Set(float64(onDuty))
	DatasetComunas.Set(float64(comunas))
	DatasetAgeSeconds.Set(ageSeconds)
}
