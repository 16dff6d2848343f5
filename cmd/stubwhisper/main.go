// Command stubwhisper is a stand-in transcription server for local runs.
// It answers both the whisper.cpp /inference form and the OpenAI-compatible
// /v1/audio/transcriptions route with a canned text per uploaded file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/skypro1111/audio-transcriber/internal/audio"
)

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type stub struct {
	text   string
	delay  time.Duration
	logger *slog.Logger
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	text := flag.String("text", "This is a test transcription.", "Text returned for every file")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := &stub{text: *text, delay: *delay, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Post("/inference", s.handleTranscribe)
	r.Post("/v1/audio/transcriptions", s.handleTranscribe)

	logger.Info("Stub transcription server starting",
		slog.String("addr", *addr),
		slog.String("whisper_endpoint", fmt.Sprintf("http://localhost%s/inference", *addr)),
		slog.String("openai_base_url", fmt.Sprintf("http://localhost%s/v1", *addr)),
	)

	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (s *stub) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	var seconds float64
	if info, err := audio.GetWAVInfo(data); err == nil {
		seconds = info.Duration
	}

	s.logger.Info("Transcription request",
		slog.String("path", r.URL.Path),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)),
		slog.Float64("duration_seconds", seconds),
		slog.String("model", r.FormValue("model")),
		slog.String("language", r.FormValue("language")),
	)

	select {
	case <-time.After(s.delay):
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transcriptionResponse{
		Text:     s.text,
		Language: r.FormValue("language"),
		Duration: seconds,
	})
}
