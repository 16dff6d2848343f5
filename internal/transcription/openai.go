package transcription

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible /audio/transcriptions backend
// (OpenAI, faster-whisper-server, LocalAI, ...).
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // default: https://api.openai.com/v1
	Model    string
	Language string
}

// OpenAIEngine transcribes files through the go-openai client
type OpenAIEngine struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIEngine creates an engine for one model name
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIEngine{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (e *OpenAIEngine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       e.model,
		FilePath:    audioPath,
		Language:    e.language,
		Format:      openai.AudioResponseFormatJSON,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (e *OpenAIEngine) Close() error { return nil }

// NewOpenAILoader returns a Loader resolving each size to a model name.
// Sizes missing from modelNames use the size string itself, which is what
// local whisper servers typically accept.
func NewOpenAILoader(base OpenAIConfig, modelNames map[ModelSize]string) Loader {
	return func(ctx context.Context, size ModelSize) (Engine, error) {
		cfg := base
		cfg.Model = string(size)
		if name, ok := modelNames[size]; ok && name != "" {
			cfg.Model = name
		}
		return NewOpenAIEngine(cfg)
	}
}
