package transcription

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeEngine records concurrency and returns canned results
type fakeEngine struct {
	text     string
	err      error
	delay    time.Duration
	inFlight int32
	maxSeen  int32
	calls    int32
	closed   bool
}

func (e *fakeEngine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	n := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&e.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&e.maxSeen, seen, n) {
			break
		}
	}
	atomic.AddInt32(&e.calls, 1)
	time.Sleep(e.delay)
	return e.text, e.err
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func TestParseModelSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ModelSize
		wantErr bool
	}{
		{in: "tiny", want: SizeTiny},
		{in: "Base", want: SizeBase},
		{in: " small ", want: SizeSmall},
		{in: "medium", want: SizeMedium},
		{in: "large", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseModelSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseModelSize(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseModelSize(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseModelSize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProviderLoadsOncePerSize(t *testing.T) {
	loads := map[ModelSize]int{}
	loader := func(ctx context.Context, size ModelSize) (Engine, error) {
		loads[size]++
		return &fakeEngine{text: string(size)}, nil
	}
	provider := NewProvider(loader, newTestLogger(), nil)

	first, err := provider.Load(context.Background(), SizeBase)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := provider.Load(context.Background(), SizeBase)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if first != second {
		t.Error("Expected the cached handle to be reused")
	}
	if _, err := provider.Load(context.Background(), SizeTiny); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loads[SizeBase] != 1 || loads[SizeTiny] != 1 {
		t.Errorf("Expected one load per size, got %v", loads)
	}

	loaded := provider.Loaded()
	if len(loaded) != 2 || loaded[0] != SizeTiny || loaded[1] != SizeBase {
		t.Errorf("Unexpected loaded sizes %v", loaded)
	}

	if err := provider.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(provider.Loaded()) != 0 {
		t.Error("Expected no models after Close")
	}
}

func TestProviderLoadErrors(t *testing.T) {
	loader := func(ctx context.Context, size ModelSize) (Engine, error) {
		return nil, errors.New("weights not found")
	}
	provider := NewProvider(loader, newTestLogger(), nil)

	_, err := provider.Load(context.Background(), SizeSmall)
	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected ModelLoadError, got %v", err)
	}
	if loadErr.Size != SizeSmall {
		t.Errorf("Expected size small, got %q", loadErr.Size)
	}

	_, err = provider.Load(context.Background(), ModelSize("large"))
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected ModelLoadError for unknown size, got %v", err)
	}
}

func TestProviderLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := NewProvider(func(ctx context.Context, size ModelSize) (Engine, error) {
		cancel()
		return nil, ctx.Err()
	}, newTestLogger(), nil)

	_, err := provider.Load(ctx, SizeBase)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	var loadErr *ModelLoadError
	if errors.As(err, &loadErr) {
		t.Error("Cancellation during load should not be reported as ModelLoadError")
	}
	if len(provider.Loaded()) != 0 {
		t.Error("Canceled load must not cache a model")
	}
}

func TestModelWrapsInferenceError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("out of memory")}
	provider := NewProvider(func(ctx context.Context, size ModelSize) (Engine, error) {
		return engine, nil
	}, newTestLogger(), nil)

	model, err := provider.Load(context.Background(), SizeMedium)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err = model.Transcribe(context.Background(), "/tmp/chunk.wav")
	var inferenceErr *InferenceError
	if !errors.As(err, &inferenceErr) {
		t.Fatalf("Expected InferenceError, got %v", err)
	}
	if inferenceErr.Size != SizeMedium {
		t.Errorf("Expected size medium, got %q", inferenceErr.Size)
	}
}

func TestModelCanceledContext(t *testing.T) {
	engine := &fakeEngine{text: "unused"}
	provider := NewProvider(func(ctx context.Context, size ModelSize) (Engine, error) {
		return engine, nil
	}, newTestLogger(), nil)
	model, _ := provider.Load(context.Background(), SizeTiny)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := model.Transcribe(ctx, "/tmp/chunk.wav")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(&engine.calls) != 0 {
		t.Error("Engine should not run for a canceled context")
	}
}

func TestModelSerializesInference(t *testing.T) {
	engine := &fakeEngine{text: "ok", delay: 5 * time.Millisecond}
	provider := NewProvider(func(ctx context.Context, size ModelSize) (Engine, error) {
		return engine, nil
	}, newTestLogger(), nil)
	model, _ := provider.Load(context.Background(), SizeBase)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := model.Transcribe(context.Background(), "/tmp/chunk.wav"); err != nil {
				t.Errorf("Transcribe failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&engine.maxSeen); got != 1 {
		t.Errorf("Expected at most one concurrent inference, saw %d", got)
	}
	if got := atomic.LoadInt32(&engine.calls); got != 8 {
		t.Errorf("Expected 8 calls, got %d", got)
	}
}
