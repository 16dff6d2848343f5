// Command transcribe runs one recording through the pipeline and prints the transcript.
//
//	transcribe [-config path] [-model size] [-chunk 10m] [-policy fail_fast|continue] [-out file] <audio>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/config"
	"github.com/skypro1111/audio-transcriber/internal/logging"
	"github.com/skypro1111/audio-transcriber/internal/pipeline"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

func main() {
	configPath := flag.String("config", "", "Optional configuration file")
	envFile := flag.String("env", ".env", "Optional .env file with secrets")
	modelFlag := flag.String("model", "", "Model size (tiny, base, small, medium)")
	chunk := flag.Duration("chunk", 0, "Segment length, e.g. 10m (default from config)")
	policyFlag := flag.String("policy", "", "Segment error policy: fail_fast or continue")
	outPath := flag.String("out", "", "Write the transcript to this file instead of stdout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <audio file>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Progress goes to stderr as plain lines; keep library logs quiet unless asked
	if *configPath == "" {
		cfg.Logging.Level = "warn"
		cfg.Logging.Output = "stderr"
	}
	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger, options{
		input:  flag.Arg(0),
		output: *outPath,
		model:  *modelFlag,
		chunk:  *chunk,
		policy: *policyFlag,
	})
	if err != nil {
		report(err)
		logCloser.Close()
		os.Exit(1)
	}
}

type options struct {
	input  string
	output string
	model  string
	chunk  time.Duration
	policy string
}

// loadConfig reads path when given, otherwise starts from defaults plus the environment
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg := config.Default()
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) error {
	size := cfg.Model.DefaultSize
	if opts.model != "" {
		size = opts.model
	}
	modelSize, err := transcription.ParseModelSize(size)
	if err != nil {
		return err
	}

	policyName := cfg.Pipeline.OnSegmentError
	if opts.policy != "" {
		policyName = opts.policy
	}
	policy, err := pipeline.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	chunkMs := cfg.Pipeline.ChunkLengthMs
	if opts.chunk != 0 {
		chunkMs = opts.chunk.Milliseconds()
		if chunkMs <= 0 {
			return fmt.Errorf("%w: -chunk must be at least 1ms, got %s", audio.ErrInvalidDuration, opts.chunk)
		}
	}

	modelNames, err := transcription.ParseModelNames(cfg.Model.ModelNames)
	if err != nil {
		return err
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
	}, nil)
	if err != nil {
		return err
	}

	provider := transcription.NewProvider(loader, logger, nil)
	defer provider.Close()

	model, err := provider.Load(ctx, modelSize)
	if err != nil {
		return err
	}

	in, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	pipe := pipeline.New(pipeline.Config{
		ChunkLengthMs:  chunkMs,
		Policy:         policy,
		TempDir:        cfg.Pipeline.TempDir,
		AllowedFormats: cfg.Pipeline.AllowedFormats,
	}, audio.NewAutoDecoder(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate), logger)

	res, err := pipe.Run(ctx, model, pipeline.Request{
		Filename: filepath.Base(opts.input),
		Body:     in,
	}, printProgress)
	if err != nil {
		return err
	}

	if len(res.FailedSegments) > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d of %d segments failed: %s\n",
			len(res.FailedSegments), len(res.Segments), segmentNumbers(res.FailedSegments))
	}

	return writeTranscript(opts.output, res.Transcript)
}

func printProgress(p pipeline.Progress) {
	switch p.Status {
	case pipeline.StatusTranscribing:
		fmt.Fprintf(os.Stderr, "[%d/%d] transcribing...\n", p.Index+1, p.Total)
	case pipeline.StatusDone:
		fmt.Fprintf(os.Stderr, "[%d/%d] done (%.0f%%)\n", p.Index+1, p.Total, p.Ratio*100)
	case pipeline.StatusFailed:
		fmt.Fprintf(os.Stderr, "[%d/%d] failed: %s\n", p.Index+1, p.Total, p.Error)
	}
}

// segmentNumbers formats 0-based segment indices as the 1-based numbers shown in progress lines
func segmentNumbers(indices []int) string {
	numbers := make([]string, len(indices))
	for i, index := range indices {
		numbers[i] = strconv.Itoa(index + 1)
	}
	return strings.Join(numbers, ", ")
}

func writeTranscript(path, transcript string) (err error) {
	var w io.Writer = os.Stdout
	if path != "" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if closeErr := f.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("write transcript: %w", closeErr)
			}
		}()
		w = f
	}

	if _, err := fmt.Fprintln(w, transcript); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func report(err error) {
	kind := pipeline.Kind(err)
	if errors.Is(err, fs.ErrNotExist) {
		kind = "NotFound"
	}

	if index, ok := pipeline.SegmentIndex(err); ok {
		fmt.Fprintf(os.Stderr, "transcription failed (%s) at segment %d: %v\n", kind, index+1, err)
		return
	}
	fmt.Fprintf(os.Stderr, "transcription failed (%s): %v\n", kind, err)
}
