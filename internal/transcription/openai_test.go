package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEngineTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Bad multipart body: %v", err)
		}
		if got := r.FormValue("model"); got != "Systran/faster-whisper-base" {
			t.Errorf("Unexpected model %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("Missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": " Hello world. "})
	}))
	defer server.Close()

	loader := NewOpenAILoader(
		OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/"},
		map[ModelSize]string{SizeBase: "Systran/faster-whisper-base"},
	)
	engine, err := loader(context.Background(), SizeBase)
	if err != nil {
		t.Fatalf("loader failed: %v", err)
	}
	defer engine.Close()

	text, err := engine.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("Expected trimmed text, got %q", text)
	}
}

func TestOpenAIEngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "inference crashed", "type": "server_error"},
		})
	}))
	defer server.Close()

	engine, err := NewOpenAIEngine(OpenAIConfig{BaseURL: server.URL, Model: "tiny"})
	if err != nil {
		t.Fatalf("NewOpenAIEngine failed: %v", err)
	}
	if _, err := engine.Transcribe(context.Background(), writeChunk(t)); err == nil {
		t.Error("Expected error from failing server")
	}
}

func TestOpenAILoaderDefaultsToSizeName(t *testing.T) {
	loader := NewOpenAILoader(OpenAIConfig{BaseURL: "http://localhost:8000/v1"}, nil)
	engine, err := loader(context.Background(), SizeTiny)
	if err != nil {
		t.Fatalf("loader failed: %v", err)
	}
	if got := engine.(*OpenAIEngine).model; got != "tiny" {
		t.Errorf("Expected model tiny, got %q", got)
	}
}

func TestNewOpenAIEngineRequiresModel(t *testing.T) {
	if _, err := NewOpenAIEngine(OpenAIConfig{}); err == nil {
		t.Error("Expected error for empty model name")
	}
}
