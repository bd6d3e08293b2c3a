package providers

import (
	"time"
	"vfd/internal/structures"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	IncSamplesIngested(source string)
	ObserveComputeDuration(duration time.Duration)
	IncComputeTotal(result string)
	IncEventsEmitted(eventType string, mode string)
	IncEventsDropped()
	IncEventsDelivered()
}

type MetricsProvider struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	samplesIngested *prometheus.CounterVec
	computeDuration prometheus.Histogram
	computeTotal    *prometheus.CounterVec
	eventsEmitted   *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	eventsDelivered prometheus.Counter
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) IncSamplesIngested(source string) {
	m.samplesIngested.WithLabelValues(source).Inc()
}

func (m *MetricsProvider) ObserveComputeDuration(duration time.Duration) {
	m.computeDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncComputeTotal(result string) {
	m.computeTotal.WithLabelValues(result).Inc()
}

func (m *MetricsProvider) IncEventsEmitted(eventType string, mode string) {
	m.eventsEmitted.WithLabelValues(eventType, mode).Inc()
}

func (m *MetricsProvider) IncEventsDropped() {
	m.eventsDropped.Inc()
}

func (m *MetricsProvider) IncEventsDelivered() {
	m.eventsDelivered.Inc()
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vfd_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vfd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vfd_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vfd_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		samplesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vfd_samples_ingested_total",
			Help: "Total number of writing samples stored",
		}, []string{"source"}),

		computeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vfd_compute_duration_seconds",
			Help:    "Duration of fingerprint computation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		computeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vfd_compute_total",
			Help: "Fingerprint computation cycles by result",
		}, []string{"result"}),

		eventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vfd_events_emitted_total",
			Help: "Events published to the bus by type and delivery mode",
		}, []string{"type", "mode"}),

		eventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vfd_events_dropped_total",
			Help: "Duplicate events collapsed during debounce",
		}),

		eventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vfd_events_delivered_total",
			Help: "Events delivered to subscribers",
		}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) IncSamplesIngested(_ string)                      {}
func (n *noopMetrics) ObserveComputeDuration(_ time.Duration)           {}
func (n *noopMetrics) IncComputeTotal(_ string)                         {}
func (n *noopMetrics) IncEventsEmitted(_ string, _ string)              {}
func (n *noopMetrics) IncEventsDropped()                                {}
func (n *noopMetrics) IncEventsDelivered()                              {}
