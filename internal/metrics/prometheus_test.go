package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.RecordPipelineRun("completed", 1)
	m.RecordAudioDuration(10)
	m.RecordSegmentExported(1024)
	m.RecordSegmentFailed()
	m.RecordTranscriptionRequest()
	m.RecordTranscriptionSuccess(1)
	m.RecordTranscriptionFailure(1)
	m.RecordTranscriptionRetry()
	m.SetActiveJobs(1)
	m.SetQueuedJobs(1)
	m.RecordCacheLookup(true)
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.RecordHTTPError("GET", "/health", "server_error")
}

func TestRecordings(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordPipelineRun("completed", 12)
	m.RecordPipelineRun("InferenceError", 3)
	m.RecordPipelineRun("completed", 7)
	m.RecordSegmentExported(2048)
	m.RecordSegmentExported(4096)
	m.RecordCacheLookup(false)
	m.SetActiveJobs(2)

	if got := testutil.ToFloat64(m.PipelineRuns.WithLabelValues("completed")); got != 2 {
		t.Errorf("Expected 2 completed runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.PipelineRuns.WithLabelValues("InferenceError")); got != 1 {
		t.Errorf("Expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.SegmentsExported); got != 2 {
		t.Errorf("Expected 2 exported segments, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveJobs); got != 2 {
		t.Errorf("Expected 2 active jobs, got %v", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances on separate registries must not collide
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
