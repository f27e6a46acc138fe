package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionsTotal tracks terminal request outcomes
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrguard_extractions_total",
			Help: "Total number of extraction requests by outcome",
		},
		[]string{"outcome"},
	)

	// ExtractionDuration tracks end-to-end request latency
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrguard_extraction_duration_seconds",
			Help:    "Extraction request latency in seconds, including backoff",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"outcome"},
	)

	// EngineDuration tracks time spent inside the recognition engine
	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrguard_engine_duration_seconds",
			Help:    "Time spent waiting on the recognition engine in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"key"},
	)

	// ExtractionAttempts tracks attempts per request
	ExtractionAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrguard_extraction_attempts",
			Help:    "Number of attempts made per extraction request",
			Buckets: prometheus.LinearBuckets(1, 1, 6),
		},
	)

	// ImageSizeBytes tracks accepted image sizes
	ImageSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrguard_image_size_bytes",
			Help:    "Size of images submitted for extraction",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
		},
	)

	// EstimatedMemoryMB tracks the validator's peak memory estimate
	EstimatedMemoryMB = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrguard_estimated_memory_megabytes",
			Help:    "Estimated peak decode memory per request in megabytes",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// CircuitOpen is 1 while the breaker rejects requests
	CircuitOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrguard_circuit_open",
			Help: "Whether the engine circuit breaker is open (1) or closed (0)",
		},
	)

	// CircuitTransitions counts breaker state changes
	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrguard_circuit_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"to"},
	)

	// PoolHandles tracks live pooled engine handles
	PoolHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrguard_pool_handles",
			Help: "Number of initialized engine handles in the pool",
		},
	)
)
