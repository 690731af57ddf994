// Package metrics provides Prometheus metrics for the rally scoring service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Scoring
	pointsResolved     *prometheus.CounterVec
	pointsByStatus     *prometheus.CounterVec
	gamesCompleted     prometheus.Counter
	serverChangeResets prometheus.Counter
	pipelineLatency    prometheus.Histogram
	batchesProcessed   prometheus.Counter
	batchesDuplicate   prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Store
	storeLatency   *prometheus.HistogramVec
	storeWritten   prometheus.Counter
	storeUnchanged prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rallyscore",
		subsystem:        "core",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.customLabels) > 0 {
		m.registry = prometheus.WrapRegistererWith(m.customLabels, m.registry)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval is how often gauges sampled by the caller should be updated.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.pointsResolved = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "points_resolved_total",
		Help: "Points by the rule that decided the winner",
	}, []string{"rule"})
	m.pointsByStatus = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "points_tracked_total",
		Help: "Points by scoring status (scored, unresolved, blocked, integrity_error)",
	}, []string{"status"})
	m.gamesCompleted = m.counter("games_completed_total", "Games that reached the game marker")
	m.serverChangeResets = m.counter("server_change_resets_total", "Score resets caused by a server change inside a game")
	m.pipelineLatency = m.histogram("pipeline_latency_milliseconds", "Resolve and track latency per run")
	m.batchesProcessed = m.counter("batches_processed_total", "Batches scored by workers")
	m.batchesDuplicate = m.counter("batches_duplicate_total", "Batches rejected as already submitted")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "store_latency_milliseconds",
		Help:    "Store operation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"op"})
	m.storeWritten = m.counter("store_rallies_written_total", "Rallies inserted or updated in the store")
	m.storeUnchanged = m.counter("store_rallies_unchanged_total", "Rallies left alone because the stored point is identical")

	m.queueSize = m.gauge("queue_size", "Current number of queued batches")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued batches")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Batches enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Batches dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueue attempts")

	m.workerCount = m.gauge("worker_count", "Number of scoring workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per batch processing latency")
	m.workerErrors = m.counter("worker_errors_total", "Batches that failed in a worker")

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "errors_by_component_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

func (m *Manager) on() bool { return m != nil && m.enabled }

// RecordPointResolved counts a point by the rule that decided it.
func RecordPointResolved(rule string) {
	if globalManager.on() {
		globalManager.pointsResolved.WithLabelValues(rule).Inc()
	}
}

// RecordPointStatus counts a tracked point by status.
func RecordPointStatus(status string) {
	if globalManager.on() {
		globalManager.pointsByStatus.WithLabelValues(status).Inc()
	}
}

// RecordGameCompleted increments the completed games counter.
func RecordGameCompleted() {
	if globalManager.on() {
		globalManager.gamesCompleted.Inc()
	}
}

// RecordServerChangeReset increments the defensive reset counter.
func RecordServerChangeReset() {
	if globalManager.on() {
		globalManager.serverChangeResets.Inc()
	}
}

// RecordPipelineLatency records a pipeline run in milliseconds.
func RecordPipelineLatency(latencyMs float64) {
	if globalManager.on() {
		globalManager.pipelineLatency.Observe(latencyMs)
	}
}

// RecordBatchProcessed increments the processed batch counter.
func RecordBatchProcessed() {
	if globalManager.on() {
		globalManager.batchesProcessed.Inc()
	}
}

// RecordBatchDuplicate increments the duplicate batch counter.
func RecordBatchDuplicate() {
	if globalManager.on() {
		globalManager.batchesDuplicate.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	if globalManager.on() {
		globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// RecordStoreRallies counts written and unchanged rallies of one write.
func RecordStoreRallies(written, unchanged int) {
	if globalManager.on() {
		globalManager.storeWritten.Add(float64(written))
		globalManager.storeUnchanged.Add(float64(unchanged))
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if globalManager.on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if globalManager.on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if globalManager.on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if globalManager.on() {
		globalManager.queueEnqueueRate.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if globalManager.on() {
		globalManager.queueDequeueRate.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if globalManager.on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	if globalManager.on() {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if globalManager.on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if globalManager.on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.on() {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// SetEnabled turns recording on or off for the global manager.
func SetEnabled(enabled bool) {
	globalManager.enabled = enabled
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
