// Package metrics provides Prometheus metrics for the adroute service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default buckets for candidate counts per resolution.
var candidateBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000}

// Manager manages all Prometheus metrics for the adroute service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	buyersRegistered      prometheus.Counter
	validationFailures    prometheus.Counter
	registrationConflicts prometheus.Counter
	indexEntriesWritten   prometheus.Counter
	indexEntriesRemoved   prometheus.Counter

	// Resolution
	resolutions         *prometheus.CounterVec
	resolutionLatency   prometheus.Histogram
	resolutionCandidate prometheus.Histogram
	staleReferences     *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repair queue
	repairQueueCapacity    prometheus.Gauge
	repairQueueSize        prometheus.Gauge
	repairQueueUtilization prometheus.Gauge
	repairEnqueued         prometheus.Counter
	repairDequeued         prometheus.Counter
	repairEnqueueErrors    prometheus.Counter
	repairDuplicates       prometheus.Counter
	repairPruned           prometheus.Counter
	repairSkipped          prometheus.Counter

	// Repair workers
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "adroute",
		subsystem:        "router",
		histogramBuckets: prometheus.DefBuckets,
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.buyersRegistered = m.counter("buyers_registered_total", "Total number of buyer records registered or replaced")
	m.validationFailures = m.counter("validation_failures_total", "Total number of buyer records rejected by schema validation")
	m.registrationConflicts = m.counter("registration_conflicts_total", "Total number of registration retries caused by concurrent writes")
	m.indexEntriesWritten = m.counter("index_entries_written_total", "Total number of criteria index memberships added")
	m.indexEntriesRemoved = m.counter("index_entries_removed_total", "Total number of criteria index memberships removed")

	m.resolutions = m.counterVec("resolutions_total", "Total number of route resolutions by outcome", "outcome")
	m.resolutionLatency = m.histogram("resolution_latency_milliseconds", "Route resolution latency in milliseconds", m.histogramBuckets)
	m.resolutionCandidate = m.histogram("resolution_candidates", "Number of intersected offer references per resolution", candidateBuckets)
	m.staleReferences = m.counterVec("stale_references_total", "Index references whose buyer record could not be read", "reason")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "store", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "store", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.repairQueueCapacity = m.gauge("repair_queue_capacity", "Maximum repair queue capacity")
	m.repairQueueSize = m.gauge("repair_queue_size", "Current number of queued repair jobs")
	m.repairQueueUtilization = m.gauge("repair_queue_utilization_ratio", "Repair queue utilization ratio (current size / capacity)")
	m.repairEnqueued = m.counter("repair_enqueue_total", "Total number of repair jobs enqueued")
	m.repairDequeued = m.counter("repair_dequeue_total", "Total number of repair jobs dequeued")
	m.repairEnqueueErrors = m.counter("repair_enqueue_errors_total", "Total number of repair jobs dropped on enqueue")
	m.repairDuplicates = m.counter("repair_duplicates_total", "Total number of repair jobs suppressed as already in flight")
	m.repairPruned = m.counter("repair_pruned_total", "Total number of stale index memberships pruned")
	m.repairSkipped = m.counter("repair_skipped_total", "Total number of repair jobs skipped because the buyer reappeared")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of active repair workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle repair workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average repair jobs processed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Repair job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Total number of repair worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingestion.

// RecordBuyerRegistered increments the registered buyers counter.
func RecordBuyerRegistered() {
	globalManager.buyersRegistered.Inc()
}

// RecordValidationFailure increments the schema rejection counter.
func RecordValidationFailure() {
	globalManager.validationFailures.Inc()
}

// RecordRegistrationConflict increments the registration retry counter.
func RecordRegistrationConflict() {
	globalManager.registrationConflicts.Inc()
}

// RecordIndexEntriesWritten adds n index memberships.
func RecordIndexEntriesWritten(n int) {
	globalManager.indexEntriesWritten.Add(float64(n))
}

// RecordIndexEntriesRemoved adds n removed index memberships.
func RecordIndexEntriesRemoved(n int) {
	globalManager.indexEntriesRemoved.Add(float64(n))
}

// Resolution.

// RecordResolution counts a resolution by outcome (match, no_match, invalid, error).
func RecordResolution(outcome string) {
	globalManager.resolutions.WithLabelValues(outcome).Inc()
}

// RecordResolutionLatency records resolution latency in milliseconds.
func RecordResolutionLatency(latencyMs float64) {
	globalManager.resolutionLatency.Observe(latencyMs)
}

// RecordResolutionCandidates records the intersection size of a resolution.
func RecordResolutionCandidates(n int) {
	globalManager.resolutionCandidate.Observe(float64(n))
}

// RecordStaleReference counts an index reference whose record could not be read.
func RecordStaleReference(reason string) {
	globalManager.staleReferences.WithLabelValues(reason).Inc()
}

// Store.

// RecordStoreOperation records store operation latency.
func RecordStoreOperation(store, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(store, operation).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(store, operation string) {
	globalManager.storeErrors.WithLabelValues(store, operation).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repair queue.

// UpdateRepairQueueCapacity sets the maximum repair queue capacity.
func UpdateRepairQueueCapacity(capacity int) {
	globalManager.repairQueueCapacity.Set(float64(capacity))
}

// UpdateRepairQueueSize sets the current repair queue size.
func UpdateRepairQueueSize(size int) {
	globalManager.repairQueueSize.Set(float64(size))
}

// UpdateRepairQueueUtilization sets the repair queue utilization ratio.
func UpdateRepairQueueUtilization(utilization float64) {
	globalManager.repairQueueUtilization.Set(utilization)
}

// RecordRepairEnqueue increments the enqueue counter.
func RecordRepairEnqueue() {
	globalManager.repairEnqueued.Inc()
}

// RecordRepairDequeue increments the dequeue counter.
func RecordRepairDequeue() {
	globalManager.repairDequeued.Inc()
}

// RecordRepairEnqueueError increments the dropped job counter.
func RecordRepairEnqueueError() {
	globalManager.repairEnqueueErrors.Inc()
}

// RecordRepairDuplicate increments the suppressed job counter.
func RecordRepairDuplicate() {
	globalManager.repairDuplicates.Inc()
}

// RecordRepairPruned adds n pruned memberships.
func RecordRepairPruned(n int) {
	globalManager.repairPruned.Add(float64(n))
}

// RecordRepairSkipped increments the skipped job counter.
func RecordRepairSkipped() {
	globalManager.repairSkipped.Inc()
}

// Workers.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average jobs processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
