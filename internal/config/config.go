package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvAPIKey       = "TRANSCRIBER_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvRedisAddr    = "TRANSCRIBER_REDIS_ADDR"
	EnvModelSize    = "TRANSCRIBER_MODEL_SIZE"
)

var (
	modelSizes    = []string{"tiny", "base", "small", "medium"}
	modelBackends = []string{"openai", "http"}
	errorPolicies = []string{"fail_fast", "continue"}
)

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Audio    AudioConfig    `yaml:"audio" json:"audio"`
	Model    ModelConfig    `yaml:"model" json:"model"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port" json:"port"`
	Address         string `yaml:"address" json:"address"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"` // seconds
}

// PipelineConfig contains segmentation and job settings
type PipelineConfig struct {
	ChunkLengthMs     int64    `yaml:"chunk_length_ms" json:"chunk_length_ms"`
	OnSegmentError    string   `yaml:"on_segment_error" json:"on_segment_error"` // fail_fast | continue
	TempDir           string   `yaml:"temp_dir" json:"temp_dir"`
	AllowedFormats    []string `yaml:"allowed_formats" json:"allowed_formats"`
	MaxConcurrentJobs int      `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	JobTTL            int      `yaml:"job_ttl" json:"job_ttl"` // seconds
	MaxUploadMB       int      `yaml:"max_upload_mb" json:"max_upload_mb"`
}

// AudioConfig contains decoding parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate" json:"sample_rate"`
	FFmpegPath string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
}

// ModelConfig selects and configures the speech recognition backend
type ModelConfig struct {
	Backend       string            `yaml:"backend" json:"backend"` // openai | http
	DefaultSize   string            `yaml:"default_size" json:"default_size"`
	Endpoint      string            `yaml:"endpoint" json:"endpoint"`
	APIKey        string            `yaml:"api_key" json:"api_key"`
	Timeout       int               `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries    int               `yaml:"max_retries" json:"max_retries"`
	MaxConcurrent int               `yaml:"max_concurrent" json:"max_concurrent"`
	ModelNames    map[string]string `yaml:"model_names" json:"model_names"`
	Language      string            `yaml:"language" json:"language"`
}

// CacheConfig contains the Redis transcript cache settings
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	TTL      int    `yaml:"ttl" json:"ttl"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns a configuration that runs locally against an OpenAI-compatible server
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8080,
			Address:         "0.0.0.0",
			ShutdownTimeout: 10,
		},
		Pipeline: PipelineConfig{
			ChunkLengthMs:     600000,
			OnSegmentError:    "fail_fast",
			AllowedFormats:    []string{"mp3", "m4a", "wav"},
			MaxConcurrentJobs: 1,
			JobTTL:            3600,
			MaxUploadMB:       512,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			FFmpegPath: "ffmpeg",
		},
		Model: ModelConfig{
			Backend:       "openai",
			DefaultSize:   "base",
			Endpoint:      "http://localhost:8000/v1",
			Timeout:       600,
			MaxRetries:    2,
			MaxConcurrent: 1,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads the configuration file over Default, applies environment overrides and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides secrets and deployment values from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.Model.APIKey = v
	} else if v, ok := lookup(EnvOpenAIAPIKey); ok && v != "" && c.Model.APIKey == "" && c.Model.Backend == "openai" {
		c.Model.APIKey = v
	}

	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Cache.Addr = v
		c.Cache.Enabled = true
	}

	if v, ok := lookup(EnvModelSize); ok && v != "" {
		c.Model.DefaultSize = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.ChunkLengthMs <= 0 {
		return fmt.Errorf("chunk_length_ms must be positive, got %d", p.ChunkLengthMs)
	}

	if !slices.Contains(errorPolicies, p.OnSegmentError) {
		return fmt.Errorf("on_segment_error must be 'fail_fast' or 'continue', got '%s'", p.OnSegmentError)
	}

	if len(p.AllowedFormats) == 0 {
		return fmt.Errorf("allowed_formats cannot be empty")
	}
	for _, f := range p.AllowedFormats {
		if f == "" {
			return fmt.Errorf("allowed_formats cannot contain empty entries")
		}
	}

	if p.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1, got %d", p.MaxConcurrentJobs)
	}

	if p.JobTTL < 1 {
		return fmt.Errorf("job_ttl must be at least 1 second, got %d", p.JobTTL)
	}

	if p.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", p.MaxUploadMB)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	return nil
}

// Validate validates model configuration
func (m *ModelConfig) Validate() error {
	if !slices.Contains(modelBackends, m.Backend) {
		return fmt.Errorf("backend must be 'openai' or 'http', got '%s'", m.Backend)
	}

	if !slices.Contains(modelSizes, m.DefaultSize) {
		return fmt.Errorf("default_size must be one of %v, got '%s'", modelSizes, m.DefaultSize)
	}

	if m.Backend == "http" && m.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty for the http backend")
	}

	if m.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", m.Timeout)
	}

	if m.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", m.MaxRetries)
	}

	if m.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", m.MaxConcurrent)
	}

	for size := range m.ModelNames {
		if !slices.Contains(modelSizes, size) {
			return fmt.Errorf("model_names has unknown size '%s'", size)
		}
	}

	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty when the cache is enabled")
	}

	if c.DB < 0 {
		return fmt.Errorf("db cannot be negative, got %d", c.DB)
	}

	if c.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1 second, got %d", c.TTL)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path

	return nil
}

// Sanitized returns a copy with secrets masked, safe to expose over the API
func (c Config) Sanitized() Config {
	if c.Model.APIKey != "" {
		c.Model.APIKey = "***"
	}
	if c.Cache.Password != "" {
		c.Cache.Password = "***"
	}
	return c
}

// GetShutdownTimeoutDuration returns the graceful shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetChunkLengthDuration returns the segment length as a time.Duration
func (p *PipelineConfig) GetChunkLengthDuration() time.Duration {
	return time.Duration(p.ChunkLengthMs) * time.Millisecond
}

// GetJobTTLDuration returns how long finished jobs are kept as a time.Duration
func (p *PipelineConfig) GetJobTTLDuration() time.Duration {
	return time.Duration(p.JobTTL) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes
func (p *PipelineConfig) MaxUploadBytes() int64 {
	return int64(p.MaxUploadMB) << 20
}

// GetTimeoutDuration returns the inference timeout as a time.Duration
func (m *ModelConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// GetTTLDuration returns the cache entry lifetime as a time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
