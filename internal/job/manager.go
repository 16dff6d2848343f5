package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/metrics"
	"github.com/skypro1111/audio-transcriber/internal/pipeline"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

var (
	// ErrNotFound is returned for unknown or expired job IDs
	ErrNotFound = errors.New("job not found")
	// ErrFinished is returned when canceling a job that already ended
	ErrFinished = errors.New("job already finished")
	// ErrStopped is returned by Submit after Stop
	ErrStopped = errors.New("job manager stopped")
)

// Runner executes one pipeline run; *pipeline.Pipeline implements it
type Runner interface {
	Run(ctx context.Context, model pipeline.Transcriber, req pipeline.Request, onProgress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// LoadFunc returns the model handle for a size
type LoadFunc func(ctx context.Context, size transcription.ModelSize) (pipeline.Transcriber, error)

// ManagerConfig contains configuration for the job manager
type ManagerConfig struct {
	MaxConcurrent   int
	TTL             time.Duration // how long finished jobs stay queryable
	CleanupInterval time.Duration
	TempDir         string // where uploads are spooled until their job runs
	DefaultModel    transcription.ModelSize
}

// Request is a transcription submission
type Request struct {
	Filename      string
	Body          io.Reader
	Model         transcription.ModelSize // DefaultModel when empty
	ChunkLengthMs int64
	Policy        pipeline.Policy
}

// Manager tracks submitted jobs and runs them in the background
type Manager struct {
	config  ManagerConfig
	runner  Runner
	load    LoadFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	jobs      map[string]*Job
	stopped   bool
	mu        sync.RWMutex
	semaphore chan struct{}
	workers   sync.WaitGroup

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a job manager and starts its cleanup routine
func NewManager(config ManagerConfig, runner Runner, load LoadFunc, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = transcription.SizeBase
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		config:    config,
		runner:    runner,
		load:      load,
		logger:    logger,
		metrics:   m,
		jobs:      make(map[string]*Job),
		semaphore: make(chan struct{}, config.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// Submit validates and spools the upload, then queues the job. Validation
// failures are returned synchronously; everything else is reported on the job.
func (m *Manager) Submit(ctx context.Context, req Request) (Info, error) {
	if m.ctx.Err() != nil {
		return Info{}, ErrStopped
	}

	size := req.Model
	if size == "" {
		size = m.config.DefaultModel
	}
	if _, err := transcription.ParseModelSize(string(size)); err != nil {
		return Info{}, err
	}
	if req.Policy != "" {
		if _, err := pipeline.ParsePolicy(string(req.Policy)); err != nil {
			return Info{}, err
		}
	}
	if req.ChunkLengthMs < 0 {
		return Info{}, fmt.Errorf("%w: chunk length must be positive, got %dms", audio.ErrInvalidDuration, req.ChunkLengthMs)
	}
	if req.Body == nil {
		return Info{}, audio.ErrEmptyInput
	}

	id := uuid.NewString()
	uploadPath, err := m.spool(ctx, id, req.Body)
	if err != nil {
		return Info{}, err
	}

	jobCtx, jobCancel := context.WithCancel(m.ctx)
	job := &Job{
		ID:        id,
		Filename:  req.Filename,
		Model:     size,
		CreatedAt: time.Now(),
		request: pipeline.Request{
			ID:            id,
			Filename:      req.Filename,
			ChunkLengthMs: req.ChunkLengthMs,
			Policy:        req.Policy,
		},
		uploadPath:  uploadPath,
		ctx:         jobCtx,
		cancel:      jobCancel,
		state:       StatePending,
		subscribers: make(map[int]chan pipeline.Progress),
	}

	// Registration and workers.Add happen under mu so Stop cannot start waiting in between
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		jobCancel()
		audio.RemoveQuietly(m.logger, uploadPath)
		return Info{}, ErrStopped
	}
	m.jobs[id] = job
	m.workers.Add(1)
	m.mu.Unlock()
	m.updateGauges()

	m.logger.Info("Job submitted",
		slog.String("job_id", id),
		slog.String("filename", req.Filename),
		slog.String("model", string(size)),
	)

	go m.process(job)

	return job.Info(), nil
}

// spool copies body into a temporary file owned by the job
func (m *Manager) spool(ctx context.Context, id string, body io.Reader) (string, error) {
	f, err := os.CreateTemp(m.config.TempDir, "upload-"+id+"-*")
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}

	n, err := io.Copy(f, readerWithContext(ctx, body))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = audio.ErrEmptyInput
	}
	if err != nil {
		audio.RemoveQuietly(m.logger, f.Name())
		if errors.Is(err, audio.ErrEmptyInput) {
			return "", err
		}
		return "", fmt.Errorf("spool upload: %w", err)
	}

	return f.Name(), nil
}

// process waits for a slot and runs the job through the pipeline
func (m *Manager) process(job *Job) {
	defer m.workers.Done()
	defer audio.RemoveQuietly(m.logger, job.uploadPath)
	defer job.cancel()

	logger := m.logger.With(slog.String("job_id", job.ID))

	select {
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	case <-job.ctx.Done():
		m.complete(logger, job, nil, job.ctx.Err())
		return
	}

	job.start()
	m.updateGauges()

	result, err := m.run(job)
	m.complete(logger, job, result, err)
}

func (m *Manager) run(job *Job) (*pipeline.Result, error) {
	model, err := m.load(job.ctx, job.Model)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(job.uploadPath)
	if err != nil {
		return nil, fmt.Errorf("open spooled upload: %w", err)
	}
	defer f.Close()

	req := job.request
	req.Body = f

	return m.runner.Run(job.ctx, model, req, job.publish)
}

func (m *Manager) complete(logger *slog.Logger, job *Job, result *pipeline.Result, err error) {
	state := job.finish(result, err)
	m.updateGauges()

	switch state {
	case StateCompleted:
		logger.Info("Job completed", slog.Duration("elapsed", result.Elapsed))
	case StateCanceled:
		logger.Info("Job canceled")
	default:
		logger.Error("Job failed",
			slog.String("kind", pipeline.Kind(err)),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns a snapshot of one job
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.RLock()
	job, exists := m.jobs[id]
	m.mu.RUnlock()

	if !exists {
		return Info{}, false
	}
	return job.Info(), true
}

// List returns snapshots of all known jobs, oldest first
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.jobs))
	for _, job := range m.jobs {
		infos = append(infos, job.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, k int) bool {
		return infos[i].CreatedAt.Before(infos[k].CreatedAt)
	})
	return infos
}

// Cancel stops a pending or running job. The state becomes canceled once
// the pipeline observes the cancellation between segments.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	job, exists := m.jobs[id]
	m.mu.RUnlock()

	if !exists {
		return ErrNotFound
	}
	if job.State().Finished() {
		return ErrFinished
	}

	job.cancel()
	m.logger.Info("Job cancellation requested", slog.String("job_id", id))
	return nil
}

// Subscribe streams progress events of a job. The channel is closed when the
// job finishes or the returned function is called.
func (m *Manager) Subscribe(id string) (<-chan pipeline.Progress, func(), error) {
	m.mu.RLock()
	job, exists := m.jobs[id]
	m.mu.RUnlock()

	if !exists {
		return nil, nil, ErrNotFound
	}

	ch, unsubscribe := job.subscribe()
	return ch, unsubscribe, nil
}

// Stop cancels every unfinished job, waits for workers and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping job manager...")

	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.cancel()
	m.workers.Wait()
	<-m.cleanup

	counts := make(map[State]int)
	for _, info := range m.List() {
		counts[info.State]++
	}

	m.logger.Info("Job manager stopped",
		slog.Int("completed", counts[StateCompleted]),
		slog.Int("failed", counts[StateFailed]),
		slog.Int("canceled", counts[StateCanceled]),
	)
}

func (m *Manager) updateGauges() {
	var running, queued int

	m.mu.RLock()
	for _, job := range m.jobs {
		switch job.State() {
		case StateProcessing:
			running++
		case StatePending:
			queued++
		}
	}
	m.mu.RUnlock()

	m.metrics.SetActiveJobs(running)
	m.metrics.SetQueuedJobs(queued)
}

// startCleanupRoutine runs in a separate goroutine to expire finished jobs
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Job cleanup routine started",
		slog.Duration("ttl", m.config.TTL),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Job cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredJobs()
		}
	}
}

// cleanupExpiredJobs forgets finished jobs older than the TTL
func (m *Manager) cleanupExpiredJobs() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, job := range m.jobs {
		job.mu.RLock()
		finished := job.state.Finished() && now.Sub(job.finishedAt) > m.config.TTL
		job.mu.RUnlock()

		if finished {
			delete(m.jobs, id)
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info("Expired finished jobs", slog.Int("expired_count", expired))
	}
}

// readerWithContext stops reading once ctx is done
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return r.Read(p)
	})
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
