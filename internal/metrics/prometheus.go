package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	AudioDuration    prometheus.Histogram

	// Segment metrics
	SegmentsExported prometheus.Counter
	SegmentsFailed   prometheus.Counter
	ArtifactSize     prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Job metrics
	ActiveJobs prometheus.Gauge
	QueuedJobs prometheus.Gauge

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriber_pipeline_duration_seconds",
			Help:    "Wall time of a complete pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriber_audio_duration_seconds",
			Help:    "Duration of submitted recordings",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10s to ~5.7 hours
		}),

		SegmentsExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_segments_exported_total",
			Help: "Total number of segment artifacts written",
		}),
		SegmentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_segments_failed_total",
			Help: "Total number of segments that could not be transcribed",
		}),
		ArtifactSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriber_artifact_size_bytes",
			Help:    "Size of exported segment artifacts",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_transcription_requests_total",
			Help: "Total number of model inference calls",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_transcription_successes_total",
			Help: "Total number of successful inference calls",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_transcription_failures_total",
			Help: "Total number of failed inference calls",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriber_transcription_duration_seconds",
			Help:    "Duration of inference calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17 minutes
		}),
		TranscriptionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_transcription_retries_total",
			Help: "Total number of inference request retries",
		}),

		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcriber_active_jobs",
			Help: "Number of jobs currently running the pipeline",
		}),
		QueuedJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcriber_queued_jobs",
			Help: "Number of jobs waiting for a pipeline slot",
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_cache_lookups_total",
			Help: "Transcript cache lookups by result",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriber_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPipelineRun records a finished pipeline run; outcome is "completed" or an error kind
func (m *Metrics) RecordPipelineRun(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordAudioDuration records the decoded length of a recording
func (m *Metrics) RecordAudioDuration(seconds float64) {
	if m == nil {
		return
	}
	m.AudioDuration.Observe(seconds)
}

// RecordSegmentExported records an exported artifact
func (m *Metrics) RecordSegmentExported(sizeBytes int) {
	if m == nil {
		return
	}
	m.SegmentsExported.Inc()
	m.ArtifactSize.Observe(float64(sizeBytes))
}

// RecordSegmentFailed increments the failed segment counter
func (m *Metrics) RecordSegmentFailed() {
	if m == nil {
		return
	}
	m.SegmentsFailed.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// SetActiveJobs sets the number of running jobs
func (m *Metrics) SetActiveJobs(count int) {
	if m == nil {
		return
	}
	m.ActiveJobs.Set(float64(count))
}

// SetQueuedJobs sets the number of waiting jobs
func (m *Metrics) SetQueuedJobs(count int) {
	if m == nil {
		return
	}
	m.QueuedJobs.Set(float64(count))
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
