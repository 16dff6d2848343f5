package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/cache"
	"github.com/skypro1111/audio-transcriber/internal/config"
	"github.com/skypro1111/audio-transcriber/internal/job"
	"github.com/skypro1111/audio-transcriber/internal/logging"
	"github.com/skypro1111/audio-transcriber/internal/metrics"
	"github.com/skypro1111/audio-transcriber/internal/pipeline"
	"github.com/skypro1111/audio-transcriber/internal/server"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-transcriber"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envFile := flag.String("env", ".env", "Optional .env file with secrets")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("bind_address", cfg.HTTP.Address),
		slog.Duration("chunk_length", cfg.Pipeline.GetChunkLengthDuration()),
		slog.String("on_segment_error", cfg.Pipeline.OnSegmentError),
		slog.Int("max_concurrent_jobs", cfg.Pipeline.MaxConcurrentJobs),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("model_backend", cfg.Model.Backend),
		slog.String("model_endpoint", cfg.Model.Endpoint),
		slog.String("default_model", cfg.Model.DefaultSize),
		slog.Bool("cache_enabled", cfg.Cache.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	modelNames, err := transcription.ParseModelNames(cfg.Model.ModelNames)
	if err != nil {
		return fmt.Errorf("model names: %w", err)
	}
	loader, err := transcription.NewBackendLoader(transcription.BackendConfig{
		Backend:       cfg.Model.Backend,
		Endpoint:      cfg.Model.Endpoint,
		APIKey:        cfg.Model.APIKey,
		Language:      cfg.Model.Language,
		Timeout:       cfg.Model.GetTimeoutDuration(),
		MaxRetries:    cfg.Model.MaxRetries,
		MaxConcurrent: cfg.Model.MaxConcurrent,
		ModelNames:    modelNames,
	}, appMetrics)
	if err != nil {
		return err
	}

	provider := transcription.NewProvider(loader, logger, appMetrics)
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Warn("Error closing models", slog.String("error", err.Error()))
		}
	}()

	// Load the default model up front so configuration errors surface at startup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaultSize := transcription.ModelSize(cfg.Model.DefaultSize)
	if _, err := provider.Load(ctx, defaultSize); err != nil {
		return err
	}

	policy, err := pipeline.ParsePolicy(cfg.Pipeline.OnSegmentError)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(appMetrics)}

	var transcriptCache *cache.Cache
	if cfg.Cache.Enabled {
		transcriptCache = cache.New(cache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.GetTTLDuration(),
		})
		defer transcriptCache.Close()

		if err := transcriptCache.Ping(ctx); err != nil {
			logger.Warn("Redis unavailable, transcripts will not be cached until it recovers",
				slog.String("addr", cfg.Cache.Addr),
				slog.String("error", err.Error()),
			)
		}
		opts = append(opts, pipeline.WithCache(transcriptCache))
	}

	pipe := pipeline.New(pipeline.Config{
		ChunkLengthMs:  cfg.Pipeline.ChunkLengthMs,
		Policy:         policy,
		TempDir:        cfg.Pipeline.TempDir,
		AllowedFormats: cfg.Pipeline.AllowedFormats,
	}, audio.NewAutoDecoder(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate), logger, opts...)

	jobs := job.NewManager(job.ManagerConfig{
		MaxConcurrent: cfg.Pipeline.MaxConcurrentJobs,
		TTL:           cfg.Pipeline.GetJobTTLDuration(),
		TempDir:       cfg.Pipeline.TempDir,
		DefaultModel:  defaultSize,
	}, pipe, func(ctx context.Context, size transcription.ModelSize) (pipeline.Transcriber, error) {
		model, err := provider.Load(ctx, size)
		if err != nil {
			return nil, err
		}
		return model, nil
	}, logger, appMetrics)
	defer jobs.Stop()

	deps := server.Dependencies{
		Jobs:     jobs,
		Models:   provider,
		Metrics:  appMetrics,
		Gatherer: prometheus.DefaultGatherer,
	}
	if transcriptCache != nil {
		deps.Cache = transcriptCache
	}

	httpServer := server.NewHTTPServer(cfg, logger, deps)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Deferred: cancel running jobs, close the cache, release models
	return nil
}
