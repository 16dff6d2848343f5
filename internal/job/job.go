package job

import (
	"context"
	"sync"
	"time"

	"github.com/skypro1111/audio-transcriber/internal/pipeline"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

// State is the lifecycle stage of a job
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCanceled   State = "canceled"
)

// Finished reports whether s is terminal
func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// subscriberBuffer is the per-subscriber event backlog; slower readers miss events
const subscriberBuffer = 32

// Job is one submitted transcription
type Job struct {
	ID        string
	Filename  string
	Model     transcription.ModelSize
	CreatedAt time.Time

	request    pipeline.Request
	uploadPath string
	ctx        context.Context
	cancel     context.CancelFunc

	state          State
	startedAt      time.Time
	finishedAt     time.Time
	progress       *pipeline.Progress
	result         *pipeline.Result
	err            error
	subscribers    map[int]chan pipeline.Progress
	nextSubscriber int

	mu sync.RWMutex
}

// Info is a point-in-time snapshot of a job for monitoring and APIs
type Info struct {
	ID            string                  `json:"id"`
	Filename      string                  `json:"filename"`
	Model         transcription.ModelSize `json:"model"`
	State         State                   `json:"state"`
	CreatedAt     time.Time               `json:"created_at"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	FinishedAt    *time.Time              `json:"finished_at,omitempty"`
	Progress      *pipeline.Progress      `json:"progress,omitempty"`
	Result        *pipeline.Result        `json:"result,omitempty"`
	Error         string                  `json:"error,omitempty"`
	ErrorKind     string                  `json:"error_kind,omitempty"`
	FailedSegment *int                    `json:"failed_segment,omitempty"`
}

// Info returns a snapshot of the job
func (j *Job) Info() Info {
	j.mu.RLock()
	defer j.mu.RUnlock()

	info := Info{
		ID:        j.ID,
		Filename:  j.Filename,
		Model:     j.Model,
		State:     j.state,
		CreatedAt: j.CreatedAt,
		Result:    j.result,
	}
	if !j.startedAt.IsZero() {
		started := j.startedAt
		info.StartedAt = &started
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		info.FinishedAt = &finished
	}
	if j.progress != nil {
		p := *j.progress
		info.Progress = &p
	}
	if j.err != nil {
		info.Error = j.err.Error()
		info.ErrorKind = pipeline.Kind(j.err)
		if index, ok := pipeline.SegmentIndex(j.err); ok {
			info.FailedSegment = &index
		}
	}
	return info
}

// State returns the current state
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateProcessing
	j.startedAt = time.Now()
}

// finish records the outcome and closes every subscriber channel
func (j *Job) finish(result *pipeline.Result, err error) State {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case err == nil:
		j.state = StateCompleted
		j.result = result
	case pipeline.Kind(err) == pipeline.KindCanceled:
		j.state = StateCanceled
		j.err = err
	default:
		j.state = StateFailed
		j.err = err
	}
	j.finishedAt = time.Now()

	for id, ch := range j.subscribers {
		close(ch)
		delete(j.subscribers, id)
	}
	return j.state
}

// publish stores the latest event and fans it out without blocking the pipeline
func (j *Job) publish(p pipeline.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.progress = &p
	for _, ch := range j.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
}

// subscribe registers a listener, replaying the latest event. For a finished
// job the returned channel is already closed after the replay.
func (j *Job) subscribe() (<-chan pipeline.Progress, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ch := make(chan pipeline.Progress, subscriberBuffer)
	if j.progress != nil {
		ch <- *j.progress
	}
	if j.state.Finished() {
		close(ch)
		return ch, func() {}
	}

	id := j.nextSubscriber
	j.nextSubscriber++
	j.subscribers[id] = ch

	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if sub, ok := j.subscribers[id]; ok {
			close(sub)
			delete(j.subscribers, id)
		}
	}
}
