package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/metrics"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

// Policy decides what happens when one segment cannot be transcribed
type Policy string

const (
	// PolicyFailFast aborts the run on the first failed segment and discards partial text
	PolicyFailFast Policy = "fail_fast"
	// PolicyContinue records a placeholder for the failed segment and keeps going
	PolicyContinue Policy = "continue"
)

// ParsePolicy validates a policy name; empty means fail-fast
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicyContinue:
		return PolicyContinue, nil
	}
	return "", fmt.Errorf("unknown segment error policy %q (supported: fail_fast, continue)", s)
}

// Transcriber is a loaded model handle
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Size() transcription.ModelSize
}

// TranscriptCache stores finished transcripts by content key
type TranscriptCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, transcript string) error
}

// Config contains pipeline settings
type Config struct {
	ChunkLengthMs  int64
	Policy         Policy
	TempDir        string // parent of per-run work directories; os.TempDir when empty
	AllowedFormats []string
}

// Request is one recording to transcribe
type Request struct {
	ID       string
	Filename string
	Body     io.Reader

	// Optional per-request overrides of Config
	ChunkLengthMs int64
	Policy        Policy
}

// Result is the outcome of a successful run
type Result struct {
	ID             string                  `json:"id"`
	Model          transcription.ModelSize `json:"model"`
	Transcript     string                  `json:"transcript"`
	DurationMs     int64                   `json:"duration_ms"`
	Segments       []audio.Segment         `json:"segments,omitempty"`
	Fragments      []Fragment              `json:"fragments,omitempty"`
	FailedSegments []int                   `json:"failed_segments,omitempty"`
	Cached         bool                    `json:"cached"`
	Elapsed        time.Duration           `json:"elapsed"`
}

// Pipeline runs recordings through decode, segmentation, transcription and aggregation
type Pipeline struct {
	config  Config
	decoder audio.Decoder
	cache   TranscriptCache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithCache enables transcript caching
func WithCache(c TranscriptCache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithMetrics enables metric recording
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a pipeline
func New(config Config, decoder audio.Decoder, logger *slog.Logger, opts ...Option) *Pipeline {
	if config.ChunkLengthMs == 0 {
		config.ChunkLengthMs = audio.DefaultChunkLength
	}
	if config.Policy == "" {
		config.Policy = PolicyFailFast
	}
	if len(config.AllowedFormats) == 0 {
		config.AllowedFormats = audio.DefaultFormats
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		config:  config,
		decoder: decoder,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration
func (p *Pipeline) Config() Config {
	return p.config
}

// Run transcribes one recording with model, reporting progress to onProgress (may be nil).
// The uploaded file and every segment artifact are deleted before Run returns.
func (p *Pipeline) Run(ctx context.Context, model Transcriber, req Request, onProgress ProgressFunc) (res *Result, err error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := p.logger.With(slog.String("run_id", req.ID))

	defer func() {
		outcome := "completed"
		if err != nil {
			outcome = Kind(err)
			logger.Error("Transcription failed",
				slog.String("kind", outcome),
				slog.String("error", err.Error()),
			)
		}
		p.metrics.RecordPipelineRun(outcome, time.Since(start).Seconds())
	}()

	chunkMs := p.config.ChunkLengthMs
	if req.ChunkLengthMs != 0 {
		chunkMs = req.ChunkLengthMs
	}
	if chunkMs <= 0 {
		return nil, fmt.Errorf("%w: chunk length must be positive, got %dms", audio.ErrInvalidDuration, chunkMs)
	}
	policy := p.config.Policy
	if req.Policy != "" {
		policy = req.Policy
	}

	format := audio.FormatOf(req.Filename)
	if err := audio.CheckFormat(format, p.config.AllowedFormats); err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, audio.ErrEmptyInput
	}

	workDir, err := os.MkdirTemp(p.config.TempDir, "transcribe-"+req.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer p.removeWorkDir(logger, workDir)

	sourcePath, digest, err := persistUpload(workDir, format, req.Body)
	if err != nil {
		return nil, err
	}
	defer audio.RemoveQuietly(logger, sourcePath)

	cacheKey := CacheKey(digest, model.Size(), chunkMs)
	if transcript, ok := p.lookupCache(ctx, logger, cacheKey); ok {
		onProgress.emit(Progress{RunID: req.ID, Index: 0, Total: 1, Status: StatusDone, Text: transcript, Ratio: 1})
		return &Result{
			ID:         req.ID,
			Model:      model.Size(),
			Transcript: transcript,
			Cached:     true,
			Elapsed:    time.Since(start),
		}, nil
	}

	src := audio.NewSource(req.ID, req.Filename, sourcePath, p.decoder)
	totalMs, err := src.DurationMs(ctx)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordAudioDuration(float64(totalMs) / 1000)

	segments, err := audio.Split(totalMs, chunkMs)
	if err != nil {
		return nil, err
	}

	logger.Info("Audio decoded",
		slog.String("filename", req.Filename),
		slog.String("model", string(model.Size())),
		slog.Float64("duration_minutes", float64(totalMs)/60000),
		slog.Int("segments", len(segments)),
		slog.Int64("chunk_length_ms", chunkMs),
	)

	d := &driver{
		runID:      req.ID,
		model:      model,
		source:     src,
		exporter:   audio.NewExporter(workDir, logger),
		policy:     policy,
		logger:     logger,
		metrics:    p.metrics,
		onProgress: onProgress,
	}
	fragments, failed, err := d.run(ctx, segments)
	if err != nil {
		return nil, err
	}

	transcript, err := Aggregate(fragments, len(segments))
	if err != nil {
		return nil, err
	}

	if len(failed) == 0 {
		p.storeCache(ctx, logger, cacheKey, transcript)
	}

	res = &Result{
		ID:         req.ID,
		Model:      model.Size(),
		Transcript: transcript,
		DurationMs: totalMs,
		Segments:   segments,
		Fragments:  fragments,
		Elapsed:    time.Since(start),
	}
	for _, segErr := range failed {
		res.FailedSegments = append(res.FailedSegments, segErr.Index)
	}

	logger.Info("Transcription complete",
		slog.Int("segments", len(segments)),
		slog.Int("failed_segments", len(failed)),
		slog.Int("characters", len(transcript)),
		slog.Duration("elapsed", res.Elapsed),
	)

	return res, nil
}

// persistUpload writes the upload into dir and returns its path and SHA-256 digest
func persistUpload(dir, format string, body io.Reader) (string, hash.Hash, error) {
	f, err := os.CreateTemp(dir, "source-*."+format)
	if err != nil {
		return "", nil, fmt.Errorf("persist upload: %w", err)
	}

	digest := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, digest), body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return f.Name(), nil, fmt.Errorf("persist upload: %w", err)
	}
	if n == 0 {
		return f.Name(), nil, audio.ErrEmptyInput
	}

	return f.Name(), digest, nil
}

// CacheKey identifies a transcript by upload content, model size and chunk length
func CacheKey(digest hash.Hash, size transcription.ModelSize, chunkMs int64) string {
	return "transcript:" + hex.EncodeToString(digest.Sum(nil)) + ":" + string(size) + ":" + strconv.FormatInt(chunkMs, 10)
}

func (p *Pipeline) lookupCache(ctx context.Context, logger *slog.Logger, key string) (string, bool) {
	if p.cache == nil {
		return "", false
	}

	transcript, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Transcript cache lookup failed", slog.String("error", err.Error()))
		return "", false
	}
	p.metrics.RecordCacheLookup(ok)
	if ok {
		logger.Info("Transcript served from cache", slog.String("key", key))
	}
	return transcript, ok
}

func (p *Pipeline) storeCache(ctx context.Context, logger *slog.Logger, key, transcript string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key, transcript); err != nil {
		logger.Warn("Transcript cache store failed", slog.String("error", err.Error()))
	}
}

func (p *Pipeline) removeWorkDir(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove work directory",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)
	}
}
