// Package metrics provides Prometheus metrics for the dropwatch service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Recompute outcome labels.
const (
	RecomputeOK         = "ok"
	RecomputeInProgress = "in_progress"
	RecomputeStale      = "stale"
	RecomputeError      = "error"
)

// Cache outcome labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Manager manages all Prometheus metrics for the dropwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Recorder
	clearsRecorded  prometheus.Counter
	clearsDuplicate prometheus.Counter
	clearsRejected  prometheus.Counter
	clearsDeleted   prometheus.Counter
	dropsRecorded   prometheus.Counter

	// Aggregation
	recomputeRuns        *prometheus.CounterVec
	recomputeDuration    prometheus.Histogram
	recomputeRetries     prometheus.Counter
	statsPublished       prometheus.Gauge
	projectionGeneration prometheus.Gauge

	// Invalidation queue
	invalidationsEnqueued prometheus.Counter
	invalidationsDropped  prometheus.Counter
	queueSize             prometheus.Gauge
	queueCapacity         prometheus.Gauge

	// Stats cache
	cacheRequests *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	Configure()
}

// Configure replaces the global manager with one built from opts on a
// fresh registry, so default Go metrics stay out. Call it before recording.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager.Store(NewManager(append(opts, WithPrometheusRegistry(reg))...))
}

func current() *Manager { return globalManager.Load() }

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dropwatch",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether recording is switched on.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often callers should refresh gauge metrics.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.clearsRecorded = m.counter("clears_recorded_total", "Total number of clear events recorded")
	m.clearsDuplicate = m.counter("clears_duplicate_total", "Total number of clears rejected as a duplicate for their period")
	m.clearsRejected = m.counter("clears_rejected_total", "Total number of clears rejected by validation")
	m.clearsDeleted = m.counter("clears_deleted_total", "Total number of clear events deleted")
	m.dropsRecorded = m.counter("drops_recorded_total", "Total number of drop events recorded")

	m.recomputeRuns = m.counterVec("recompute_runs_total", "Recompute attempts by outcome", "result")
	m.recomputeDuration = m.histogram("recompute_duration_milliseconds", "Duration of successful recomputes in milliseconds")
	m.recomputeRetries = m.counter("recompute_retries_total", "Scheduled recompute retries after a storage failure")
	m.statsPublished = m.gauge("stats_published", "Number of (boss, item) stats in the published projection")
	m.projectionGeneration = m.gauge("projection_generation_seconds", "Window timestamp of the published projection (unix seconds)")

	m.invalidationsEnqueued = m.counter("invalidations_enqueued_total", "Invalidation messages accepted by the queue")
	m.invalidationsDropped = m.counter("invalidations_dropped_total", "Invalidation messages dropped because the queue was full")
	m.queueSize = m.gauge("queue_size", "Current number of pending invalidation messages")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the invalidation queue")

	m.cacheRequests = m.counterVec("stats_cache_requests_total", "Stats cache lookups by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds")
}

// RecordClearRecorded counts an accepted clear.
func RecordClearRecorded() {
	m := current()
	if m.enabled {
		m.clearsRecorded.Inc()
	}
}

// RecordClearDuplicate counts a clear rejected by the period uniqueness rule.
func RecordClearDuplicate() {
	m := current()
	if m.enabled {
		m.clearsDuplicate.Inc()
	}
}

// RecordClearRejected counts a clear rejected by validation.
func RecordClearRejected() {
	m := current()
	if m.enabled {
		m.clearsRejected.Inc()
	}
}

// RecordClearDeleted counts a deleted clear.
func RecordClearDeleted() {
	m := current()
	if m.enabled {
		m.clearsDeleted.Inc()
	}
}

// RecordDropsRecorded counts n recorded drop events.
func RecordDropsRecorded(n int) {
	m := current()
	if m.enabled && n > 0 {
		m.dropsRecorded.Add(float64(n))
	}
}

// RecordRecompute counts a recompute attempt; duration is observed for successful runs only.
func RecordRecompute(result string, durationMs float64) {
	m := current()
	if !m.enabled {
		return
	}
	m.recomputeRuns.WithLabelValues(result).Inc()
	if result == RecomputeOK {
		m.recomputeDuration.Observe(durationMs)
	}
}

// RecordRecomputeRetry counts a scheduled retry.
func RecordRecomputeRetry() {
	m := current()
	if m.enabled {
		m.recomputeRetries.Inc()
	}
}

// UpdateProjection sets the published stat count and generation.
func UpdateProjection(stats int, generation time.Time) {
	m := current()
	if !m.enabled {
		return
	}
	m.statsPublished.Set(float64(stats))
	m.projectionGeneration.Set(float64(generation.Unix()))
}

// RecordInvalidationEnqueued counts an accepted invalidation.
func RecordInvalidationEnqueued() {
	m := current()
	if m.enabled {
		m.invalidationsEnqueued.Inc()
	}
}

// RecordInvalidationDropped counts an invalidation lost to a full queue.
func RecordInvalidationDropped() {
	m := current()
	if m.enabled {
		m.invalidationsDropped.Inc()
	}
}

// UpdateQueueSize sets the queue backlog gauge.
func UpdateQueueSize(size int) {
	m := current()
	if m.enabled {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	m := current()
	if m.enabled {
		m.queueCapacity.Set(float64(capacity))
	}
}

// RecordCacheResult counts a stats cache lookup.
func RecordCacheResult(result string) {
	m := current()
	if m.enabled {
		m.cacheRequests.WithLabelValues(result).Inc()
	}
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	m := current()
	if m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	m := current()
	if m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	m := current()
	if m.enabled {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint counts an error returned by an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	m := current()
	if m.enabled {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the heap gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	m := current()
	if m.enabled {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	m := current()
	if m.enabled {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime observes a GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	m := current()
	if m.enabled {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// RefreshInterval returns the global manager's gauge refresh interval.
func RefreshInterval() time.Duration { return current().refreshInterval }

// GetRegistry returns the registry backing the global manager.
func GetRegistry() prometheus.Gatherer {
	if g, ok := current().registry.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}
