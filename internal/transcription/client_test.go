package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeChunk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk-000.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o600); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	return path
}

func noBackoff(t *testing.T) {
	t.Helper()
	orig := backoff
	backoff = func(int) time.Duration { return 0 }
	t.Cleanup(func() { backoff = orig })
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}, nil); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	client, err := NewClient(ClientConfig{Endpoint: "http://localhost:8178/inference", MaxRetries: -1}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.config.Timeout != 10*time.Minute {
		t.Errorf("Expected default timeout, got %v", client.config.Timeout)
	}
	if client.config.MaxConcurrent != 1 {
		t.Errorf("Expected default concurrency 1, got %d", client.config.MaxConcurrent)
	}
	if client.config.MaxRetries != 0 {
		t.Errorf("Expected retries clamped to 0, got %d", client.config.MaxRetries)
	}
}

func TestClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Bad multipart body: %v", err)
		}
		if _, header, err := r.FormFile("file"); err != nil {
			t.Errorf("Missing file part: %v", err)
		} else if header.Filename != "chunk-000.wav" {
			t.Errorf("Unexpected filename %q", header.Filename)
		}
		if got := r.FormValue("response_format"); got != "json" {
			t.Errorf("Expected response_format json, got %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("Expected language en, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Unexpected Authorization header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello there \n"})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, APIKey: "secret", Language: "en"}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	text, err := client.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("Expected trimmed text, got %q", text)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 || stats.SuccessRate != 100 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	noBackoff(t)

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			http.Error(w, "model busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "finally"})
	}))
	defer server.Close()

	client, _ := NewClient(ClientConfig{Endpoint: server.URL, MaxRetries: 3}, nil)

	text, err := client.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "finally" {
		t.Errorf("Expected 'finally', got %q", text)
	}
	if got := client.GetStats().TotalRetries; got != 2 {
		t.Errorf("Expected 2 retries, got %d", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	noBackoff(t)

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer server.Close()

	client, _ := NewClient(ClientConfig{Endpoint: server.URL, MaxRetries: 3}, nil)

	_, err := client.Transcribe(context.Background(), writeChunk(t))
	var se *statusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 status error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
	if got := client.GetStats().FailedRequests; got != 1 {
		t.Errorf("Expected 1 failed request, got %d", got)
	}
}

func TestClientServerReportedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "failed to read WAV file"})
	}))
	defer server.Close()

	client, _ := NewClient(ClientConfig{Endpoint: server.URL}, nil)
	if _, err := client.Transcribe(context.Background(), writeChunk(t)); err == nil {
		t.Error("Expected error for server reported failure")
	}
}

func TestClientMissingFile(t *testing.T) {
	client, _ := NewClient(ClientConfig{Endpoint: "http://127.0.0.1:1/inference"}, nil)
	if _, err := client.Transcribe(context.Background(), "/nonexistent/chunk.wav"); err == nil {
		t.Error("Expected error for missing audio file")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "500", err: &statusError{StatusCode: 500}, want: true},
		{name: "429", err: &statusError{StatusCode: 429}, want: true},
		{name: "404", err: &statusError{StatusCode: 404}, want: false},
		{name: "parse", err: errors.New("failed to parse response JSON"), want: false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("%s: isRetryableError = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClientLoaderMapsModelNames(t *testing.T) {
	var gotModel atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotModel.Store(r.FormValue("model"))
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	loader := NewClientLoader(ClientConfig{Endpoint: server.URL}, map[ModelSize]string{SizeSmall: "ggml-small.en"}, nil)
	engine, err := loader(context.Background(), SizeSmall)
	if err != nil {
		t.Fatalf("loader failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Transcribe(context.Background(), writeChunk(t)); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got := gotModel.Load(); got != "ggml-small.en" {
		t.Errorf("Expected model ggml-small.en, got %v", got)
	}
}
