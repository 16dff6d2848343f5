package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/config"
	"github.com/skypro1111/audio-transcriber/internal/job"
	"github.com/skypro1111/audio-transcriber/internal/metrics"
	"github.com/skypro1111/audio-transcriber/internal/pipeline"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

const (
	serviceName    = "audio-transcriber"
	serviceVersion = "1.0.0"

	// multipartMemory is how much of an upload is buffered in memory before spilling to disk
	multipartMemory = 32 << 20
)

// JobService is the job manager as seen by the HTTP layer
type JobService interface {
	Submit(ctx context.Context, req job.Request) (job.Info, error)
	Get(id string) (job.Info, bool)
	List() []job.Info
	Cancel(id string) error
	Subscribe(id string) (<-chan pipeline.Progress, func(), error)
}

// ModelRegistry reports which model sizes are loaded
type ModelRegistry interface {
	Loaded() []transcription.ModelSize
}

// Pinger checks an optional dependency such as the transcript cache
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators served by the HTTP API
type Dependencies struct {
	Jobs     JobService
	Models   ModelRegistry
	Cache    Pinger // nil when caching is disabled
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// HTTPServer provides the transcription API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	deps     Dependencies
	upgrader websocket.Upgrader

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, deps Dependencies) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger: logger,
		config: cfg,
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	// WriteTimeout stays zero: uploads and websocket streams are long-lived
	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the routed API
func (h *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/transcriptions", func(r chi.Router) {
		r.Post("/", h.withMetrics("/v1/transcriptions", h.handleSubmit))
		r.Get("/", h.withMetrics("/v1/transcriptions", h.handleList))
		r.Get("/{id}", h.withMetrics("/v1/transcriptions/{id}", h.handleGet))
		r.Delete("/{id}", h.withMetrics("/v1/transcriptions/{id}", h.handleCancel))
		r.Get("/{id}/events", h.withMetrics("/v1/transcriptions/{id}/events", h.handleEvents))
	})

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		h.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("endpoint", endpoint),
			slog.Int("status", ww.statusCode),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.Float64("duration_seconds", duration),
		)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets websocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", listener.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleSubmit accepts a multipart upload ("file", optional "model",
// "chunk_length_ms" and "on_segment_error") and queues a job
func (h *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.Pipeline.MaxUploadBytes())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MB", h.config.Pipeline.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	if err := audio.CheckFormat(audio.FormatOf(header.Filename), h.config.Pipeline.AllowedFormats); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	req := job.Request{
		Filename: header.Filename,
		Body:     file,
	}

	if v := r.FormValue("model"); v != "" {
		size, err := transcription.ParseModelSize(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Model = size
	}

	if v := r.FormValue("on_segment_error"); v != "" {
		policy, err := pipeline.ParsePolicy(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Policy = policy
	}

	if v := r.FormValue("chunk_length_ms"); v != "" {
		chunkMs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || chunkMs <= 0 {
			writeError(w, http.StatusBadRequest, "chunk_length_ms must be a positive integer")
			return
		}
		req.ChunkLengthMs = chunkMs
	}

	info, err := h.deps.Jobs.Submit(r.Context(), req)
	if err != nil {
		switch {
		case pipeline.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, job.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to submit job")
		}
		return
	}

	w.Header().Set("Location", "/v1/transcriptions/"+info.ID)
	writeJSON(w, http.StatusAccepted, info)
}

// handleList implements GET /v1/transcriptions
func (h *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	jobs := h.deps.Jobs.List()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGet implements GET /v1/transcriptions/{id}
func (h *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	info, exists := h.deps.Jobs.Get(chi.URLParam(r, "id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleCancel implements DELETE /v1/transcriptions/{id}
func (h *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	switch err := h.deps.Jobs.Cancel(id); {
	case errors.Is(err, job.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, job.ErrFinished):
		writeError(w, http.StatusConflict, "job already finished")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	info, _ := h.deps.Jobs.Get(id)
	writeJSON(w, http.StatusAccepted, info)
}

// eventMessage is one websocket frame: a progress event, or the final job snapshot
type eventMessage struct {
	Type     string             `json:"type"` // "progress" | "finished"
	Progress *pipeline.Progress `json:"progress,omitempty"`
	Job      *job.Info          `json:"job,omitempty"`
}

// handleEvents streams progress of one job over a websocket until it finishes
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, unsubscribe, err := h.deps.Jobs.Subscribe(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Drain client frames; a read error means the client went away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for ev := range events {
		if err := conn.WriteJSON(eventMessage{Type: "progress", Progress: &ev}); err != nil {
			h.logger.Debug("Websocket write failed", slog.String("job_id", id), slog.String("error", err.Error()))
			return
		}
	}

	if info, ok := h.deps.Jobs.Get(id); ok && info.State.Finished() {
		if err := conn.WriteJSON(eventMessage{Type: "finished", Job: &info}); err != nil {
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished"),
		time.Now().Add(time.Second))
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]interface{}{
		"jobs": map[string]interface{}{
			"status": "running",
			"states": h.stateCounts(),
		},
	}

	if h.deps.Models != nil {
		components["models"] = map[string]interface{}{
			"status": "running",
			"loaded": h.deps.Models.Loaded(),
		}
	}

	if h.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.deps.Cache.Ping(ctx); err != nil {
			status = "degraded"
			components["cache"] = map[string]interface{}{"status": "unhealthy: " + err.Error()}
		} else {
			components["cache"] = map[string]interface{}{"status": "ok"}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint with secrets masked
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Sanitized())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"jobs":      h.stateCounts(),
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                              "API documentation",
			"GET /health":                        "Service health check",
			"GET /config":                        "Get service configuration",
			"GET /stats":                         "Get job statistics",
			"GET /metrics":                       "Prometheus metrics",
			"POST /v1/transcriptions":            "Upload a recording (multipart field \"file\")",
			"GET /v1/transcriptions":             "List jobs",
			"GET /v1/transcriptions/{id}":        "Get job status and transcript",
			"DELETE /v1/transcriptions/{id}":     "Cancel a job",
			"GET /v1/transcriptions/{id}/events": "Websocket progress stream",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) stateCounts() map[job.State]int {
	counts := map[job.State]int{
		job.StatePending:    0,
		job.StateProcessing: 0,
		job.StateCompleted:  0,
		job.StateFailed:     0,
		job.StateCanceled:   0,
	}
	for _, info := range h.deps.Jobs.List() {
		counts[info.State]++
	}
	return counts
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
