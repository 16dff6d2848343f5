package transcription

import (
	"fmt"
	"time"

	"github.com/skypro1111/audio-transcriber/internal/metrics"
)

// Backend names accepted by NewBackendLoader
const (
	BackendOpenAI = "openai"
	BackendHTTP   = "http"
)

// BackendConfig selects and configures the engine behind every model size
type BackendConfig struct {
	Backend       string
	Endpoint      string
	APIKey        string
	Language      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	ModelNames    map[ModelSize]string
}

// NewBackendLoader returns the Loader for cfg.Backend
func NewBackendLoader(cfg BackendConfig, m *metrics.Metrics) (Loader, error) {
	switch cfg.Backend {
	case BackendOpenAI, "":
		return NewOpenAILoader(OpenAIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.Endpoint,
			Language: cfg.Language,
		}, cfg.ModelNames), nil
	case BackendHTTP:
		return NewClientLoader(ClientConfig{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Language:      cfg.Language,
			Timeout:       cfg.Timeout,
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
		}, cfg.ModelNames, m), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q (supported: openai, http)", cfg.Backend)
	}
}

// ParseModelNames validates a size-to-name mapping read from configuration
func ParseModelNames(names map[string]string) (map[ModelSize]string, error) {
	parsed := make(map[ModelSize]string, len(names))
	for key, name := range names {
		size, err := ParseModelSize(key)
		if err != nil {
			return nil, err
		}
		parsed[size] = name
	}
	return parsed, nil
}
