package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycimage_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kycimage_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Compression metrics
	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycimage_compressions_total",
			Help: "Total number of image compressions",
		},
		[]string{"status"}, // success, decode_error, encode_error, cancelled, error
	)

	CompressionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kycimage_compression_duration_seconds",
			Help:    "Compression duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	CompressionBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kycimage_compression_bytes",
			Help:    "Compression input/output bytes",
			Buckets: []float64{10240, 102400, 512000, 1048576, 2097152, 4194304, 8388608, 16777216},
		},
		[]string{"direction"}, // input, output
	)

	CompressionRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kycimage_compression_ratio",
			Help:    "Original size divided by compressed size",
			Buckets: []float64{0.5, 1, 1.5, 2, 4, 8, 16, 32},
		},
	)

	EncodeAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kycimage_encode_attempts",
			Help:    "Encodes performed per compression",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		},
	)

	BudgetMissed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kycimage_budget_missed_total",
			Help: "Compressions that returned the floor-quality encode over budget",
		},
	)

	// Worker pool metrics
	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kycimage_worker_pool_queue_size",
			Help: "Current number of jobs in worker pool queue",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kycimage_worker_pool_active_jobs",
			Help: "Current number of active compression jobs",
		},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycimage_rate_limit_exceeded_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
		[]string{"ip_prefix"}, // First octet for privacy
	)

	// Concurrency metrics
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kycimage_concurrent_requests",
			Help: "Current number of concurrent requests being processed",
		},
	)

	ConcurrencyLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kycimage_concurrency_limit_exceeded_total",
			Help: "Total number of requests rejected due to concurrency limit",
		},
	)

	// Upload metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycimage_uploads_total",
			Help: "Total number of stored uploads",
		},
		[]string{"status", "compressed"},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kycimage_upload_bytes_total",
			Help: "Bytes written by the upload service",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordCompression records a successful compression
func RecordCompression(format string, duration float64, inputBytes, outputBytes, attempts int, ratio float64, withinBudget bool) {
	CompressionsTotal.WithLabelValues("success").Inc()
	CompressionDuration.WithLabelValues(format).Observe(duration)
	CompressionBytes.WithLabelValues("input").Observe(float64(inputBytes))
	CompressionBytes.WithLabelValues("output").Observe(float64(outputBytes))
	CompressionRatio.Observe(ratio)
	EncodeAttempts.Observe(float64(attempts))
	if !withinBudget {
		BudgetMissed.Inc()
	}
}

// RecordCompressionFailure records a failed compression by cause
func RecordCompressionFailure(status string) {
	CompressionsTotal.WithLabelValues(status).Inc()
}

// UpdateWorkerPoolMetrics updates worker pool metrics
func UpdateWorkerPoolMetrics(queueSize, activeJobs int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
	WorkerPoolActiveJobs.Set(float64(activeJobs))
}

// RecordRateLimitExceeded records a rate limit rejection
func RecordRateLimitExceeded(ipPrefix string) {
	RateLimitExceeded.WithLabelValues(ipPrefix).Inc()
}

// UpdateConcurrency updates concurrent request gauge
func UpdateConcurrency(count int) {
	ConcurrentRequests.Set(float64(count))
}

// RecordConcurrencyLimitExceeded records a concurrency limit rejection
func RecordConcurrencyLimitExceeded() {
	ConcurrencyLimitExceeded.Inc()
}

// RecordUpload records an upload attempt
func RecordUpload(status string, compressed bool, bytes int) {
	c := "false"
	if compressed {
		c = "true"
	}
	UploadsTotal.WithLabelValues(status, c).Inc()
	if status == "success" {
		UploadBytes.Add(float64(bytes))
	}
}
