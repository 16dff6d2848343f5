package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/audio-transcriber/internal/metrics"
)

// ModelSize selects the accuracy/latency trade-off of the speech model
type ModelSize string

const (
	SizeTiny   ModelSize = "tiny"
	SizeBase   ModelSize = "base"
	SizeSmall  ModelSize = "small"
	SizeMedium ModelSize = "medium"
)

// Sizes lists every supported model size, smallest first
var Sizes = []ModelSize{SizeTiny, SizeBase, SizeSmall, SizeMedium}

// ParseModelSize validates a user supplied size name
func ParseModelSize(s string) (ModelSize, error) {
	size := ModelSize(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sizes {
		if size == known {
			return size, nil
		}
	}
	return "", fmt.Errorf("unknown model size %q (supported: tiny, base, small, medium)", s)
}

// ModelLoadError is returned when a model handle cannot be created
type ModelLoadError struct {
	Size ModelSize
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load %s model: %v", e.Size, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError is returned when the model fails to transcribe an artifact
type InferenceError struct {
	Size ModelSize
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s model inference: %v", e.Size, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Engine runs speech-to-text on one audio file
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Close() error
}

// Loader creates the engine backing a model size
type Loader func(ctx context.Context, size ModelSize) (Engine, error)

// Model is a loaded, shareable model handle. Calls to Transcribe are serialized.
type Model struct {
	size    ModelSize
	engine  Engine
	metrics *metrics.Metrics

	mu sync.Mutex
}

// Size returns the size this handle was loaded with
func (m *Model) Size() ModelSize { return m.size }

// Transcribe runs inference on the audio file at path
func (m *Model) Transcribe(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	m.metrics.RecordTranscriptionRequest()

	text, err := m.engine.Transcribe(ctx, path)
	if err != nil {
		m.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &InferenceError{Size: m.size, Err: err}
	}

	m.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())
	return text, nil
}

// Provider loads model handles once per size and keeps them until Close
type Provider struct {
	loader  Loader
	logger  *slog.Logger
	metrics *metrics.Metrics

	models map[ModelSize]*Model
	mu     sync.Mutex
}

// NewProvider creates a provider backed by loader
func NewProvider(loader Loader, logger *slog.Logger, m *metrics.Metrics) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		loader:  loader,
		logger:  logger,
		metrics: m,
		models:  make(map[ModelSize]*Model),
	}
}

// Load returns the cached handle for size, loading it on first use
func (p *Provider) Load(ctx context.Context, size ModelSize) (*Model, error) {
	if _, err := ParseModelSize(string(size)); err != nil {
		return nil, &ModelLoadError{Size: size, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if model, ok := p.models[size]; ok {
		return model, nil
	}

	start := time.Now()
	engine, err := p.loader(ctx, size)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ModelLoadError{Size: size, Err: err}
	}

	model := &Model{size: size, engine: engine, metrics: p.metrics}
	p.models[size] = model

	p.logger.Info("Model loaded",
		slog.String("size", string(size)),
		slog.Duration("load_time", time.Since(start)),
	)

	return model, nil
}

// Loaded returns the sizes currently held by the provider
func (p *Provider) Loaded() []ModelSize {
	p.mu.Lock()
	defer p.mu.Unlock()

	sizes := make([]ModelSize, 0, len(p.models))
	for _, size := range Sizes {
		if _, ok := p.models[size]; ok {
			sizes = append(sizes, size)
		}
	}
	return sizes
}

// Close releases every loaded model
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for size, model := range p.models {
		model.mu.Lock()
		if err := model.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s model: %w", size, err))
		}
		model.mu.Unlock()
		delete(p.models, size)
	}

	return errors.Join(errs...)
}
