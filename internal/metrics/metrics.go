// Package metrics exposes reader counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the reader.
type Metrics struct {
	registry *prometheus.Registry

	segmentLoads    *prometheus.CounterVec
	segmentLoadTime prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	evictions       prometheus.Counter
	cachedSegments  prometheus.Gauge
	stalls          prometheus.Counter
	wordsDisplayed  prometheus.Counter
	requests        prometheus.Counter
	errors          prometheus.Counter
}

// New creates and registers the reader metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		segmentLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsvp_segment_loads_total",
			Help: "Segment loads by result",
		}, []string{"result"}),
		segmentLoadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsvp_segment_load_seconds",
			Help:    "Time to fetch and tokenize a segment",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsvp_cache_lookups_total",
			Help: "Segment cache lookups by outcome",
		}, []string{"outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_cache_evictions_total",
			Help: "Segments evicted from the cache",
		}),
		cachedSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsvp_cached_segments",
			Help: "Segments currently held in memory",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_playback_stalls_total",
			Help: "Times playback waited for a segment",
		}),
		wordsDisplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_words_displayed_total",
			Help: "Words advanced through during playback",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_http_errors_total",
			Help: "HTTP responses with status 4xx or 5xx",
		}),
	}

	m.registry.MustRegister(
		m.segmentLoads,
		m.segmentLoadTime,
		m.cacheLookups,
		m.evictions,
		m.cachedSegments,
		m.stalls,
		m.wordsDisplayed,
		m.requests,
		m.errors,
	)
	return m
}

// SegmentLoaded records a successful load taking seconds.
func (m *Metrics) SegmentLoaded(seconds float64) {
	if m == nil {
		return
	}
	m.segmentLoads.WithLabelValues("ok").Inc()
	m.segmentLoadTime.Observe(seconds)
}

// SegmentFailed records a failed load.
func (m *Metrics) SegmentFailed() {
	if m == nil {
		return
	}
	m.segmentLoads.WithLabelValues("error").Inc()
}

// CacheLookup records a segment cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// Evicted records n evicted segments.
func (m *Metrics) Evicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.Add(float64(n))
}

// SetCachedSegments sets the cached segment gauge.
func (m *Metrics) SetCachedSegments(n int) {
	if m == nil {
		return
	}
	m.cachedSegments.Set(float64(n))
}

// IncStalls increments the playback stall counter.
func (m *Metrics) IncStalls() {
	if m == nil {
		return
	}
	m.stalls.Inc()
}

// IncWords increments the displayed word counter.
func (m *Metrics) IncWords() {
	if m == nil {
		return
	}
	m.wordsDisplayed.Inc()
}

// IncRequests increments the HTTP request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestMiddleware counts requests and error responses.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrap := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			m.IncRequests()
			if wrap.status >= 400 {
				m.IncErrors()
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
