package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace = "modelcache"
	cacheSubsystem  = "cache"
	fetchSubsystem  = "fetch"
)

// operations
const (
	OperationAcquire = "acquire"
	OperationFetch   = "fetch"
	OperationOpen    = "open"
	OperationPreload = "preload"
	OperationEvict   = "evict"
)

// events
const (
	EventEviction = "eviction"
)

// event reasons
const (
	ReasonAdmission = "admission"
	ReasonCapacity  = "capacity"
	ReasonRelease   = "release"
)

// statuses
const (
	StatusHit     = "hit"
	StatusMiss    = "miss"
	StatusOK      = "ok"
	StatusFailure = "failure"
)

// Metrics holds prometheus collectors of a single model manager
type Metrics struct {
	ObjectOperations *prometheus.CounterVec
	ByteOperations   *prometheus.CounterVec
	Events           *prometheus.CounterVec
	Objects          prometheus.Gauge
	MaxObjects       prometheus.Gauge
	FetchDuration    prometheus.Histogram
}

// NewMetrics creates collectors and registers them to the registerer given
// if registerer is nil, collectors are created but not registered
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		ObjectOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "operation_objects_total",
				Help:      "Count (in # of models) of operations performed on the model cache.",
			},
			[]string{"operation", "status"},
		),
		ByteOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: fetchSubsystem,
				Name:      "operation_bytes_total",
				Help:      "Count (in bytes) of model bytes downloaded.",
			},
			[]string{"operation", "status"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "events_total",
				Help:      "Count of events performed on the model cache.",
			},
			[]string{"event", "reason"},
		),
		Objects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "usage_objects",
				Help:      "Number of models resident in the model cache.",
			},
		),
		MaxObjects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Subsystem: cacheSubsystem,
				Name:      "max_usage_objects",
				Help:      "Maximum number of resident models before eviction.",
			},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Subsystem: fetchSubsystem,
				Name:      "duration_seconds",
				Help:      "Time required in seconds to download a model.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			metrics.ObjectOperations,
			metrics.ByteOperations,
			metrics.Events,
			metrics.Objects,
			metrics.MaxObjects,
			metrics.FetchDuration,
		)
	}

	return metrics
}

// ObserveOperation increments counters as cache operations occur
func (metrics *Metrics) ObserveOperation(operation string, status string) {
	metrics.ObjectOperations.WithLabelValues(operation, status).Inc()
}

// ObserveBytes adds downloaded bytes
func (metrics *Metrics) ObserveBytes(operation string, status string, bytes int64) {
	if bytes > 0 {
		metrics.ByteOperations.WithLabelValues(operation, status).Add(float64(bytes))
	}
}

// ObserveEvent increments counters as cache events occur, e.g., eviction
func (metrics *Metrics) ObserveEvent(event string, reason string) {
	metrics.Events.WithLabelValues(event, reason).Inc()
}

// ObserveFetchDuration records how long a download took
func (metrics *Metrics) ObserveFetchDuration(seconds float64) {
	metrics.FetchDuration.Observe(seconds)
}

// ObserveSizeChange sets the number of resident models
func (metrics *Metrics) ObserveSizeChange(objects int64) {
	metrics.Objects.Set(float64(objects))
}

// ObserveMaxObjects sets the capacity
func (metrics *Metrics) ObserveMaxObjects(maxObjects int) {
	metrics.MaxObjects.Set(float64(maxObjects))
}
