package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes recorded by MetricsService.
const (
	BookingOutcomeCreated  = "created"
	BookingOutcomeRejected = "rejected"
	BookingOutcomeFailed   = "failed"
)

// MetricsSnapshot is a lightweight JSON view of the counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	BookingsCreated          uint64    `json:"bookings_created"`
	BookingsRejected         uint64    `json:"bookings_rejected"`
	LedgerDiscrepancies      int64     `json:"ledger_discrepancies"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	bookings         *prometheus.CounterVec
	deadlineDuration *prometheus.HistogramVec
	ledgerGauge      prometheus.Gauge
	absencesExpired  prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	bookingsCreated      uint64
	bookingsRejected     uint64
	ledgerDiscrepancies  int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "makeup_bookings_total",
		Help: "Booking attempts by kind, outcome and error code",
	}, []string{"kind", "outcome", "code"})

	deadlineDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "makeup_deadline_duration_seconds",
		Help:    "Time spent computing deadlines",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "outcome"})

	ledgerGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "makeup_ledger_discrepancies",
		Help: "Credits whose counter disagrees with the usage ledger at the last reconciliation",
	})

	absencesExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "makeup_absences_expired_total",
		Help: "Absences moved to expired by the sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		bookings, deadlineDuration, ledgerGauge, absencesExpired, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		bookings:         bookings,
		deadlineDuration: deadlineDuration,
		ledgerGauge:      ledgerGauge,
		absencesExpired:  absencesExpired,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordBooking counts a reschedule or credit booking attempt. code is the error code on failure.
func (m *MetricsService) RecordBooking(kind, outcome, code string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(kind, outcome, code).Inc()
	switch outcome {
	case BookingOutcomeCreated:
		atomic.AddUint64(&m.bookingsCreated, 1)
	case BookingOutcomeRejected:
		atomic.AddUint64(&m.bookingsRejected, 1)
	}
}

// ObserveDeadline records how long a deadline computation took.
func (m *MetricsService) ObserveDeadline(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deadlineDuration.WithLabelValues(kind, outcome).Observe(duration.Seconds())
}

// SetLedgerDiscrepancies publishes the size of the last reconciliation report.
func (m *MetricsService) SetLedgerDiscrepancies(count int) {
	if m == nil {
		return
	}
	m.ledgerGauge.Set(float64(count))
	atomic.StoreInt64(&m.ledgerDiscrepancies, int64(count))
}

// AddExpiredAbsences counts absences expired by a sweep.
func (m *MetricsService) AddExpiredAbsences(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.absencesExpired.Add(float64(count))
}

// Snapshot returns aggregated metrics suitable for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		BookingsCreated:          atomic.LoadUint64(&m.bookingsCreated),
		BookingsRejected:         atomic.LoadUint64(&m.bookingsRejected),
		LedgerDiscrepancies:      atomic.LoadInt64(&m.ledgerDiscrepancies),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
