package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// countingDecoder returns a fixed number of silent samples and counts calls
type countingDecoder struct {
	samples []int16
	rate    int
	err     error
	calls   int
}

func (d *countingDecoder) Decode(ctx context.Context, path string) ([]int16, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.samples, nil
}

func (d *countingDecoder) SampleRate() int { return d.rate }

// rampSamples returns n samples whose value encodes their position
func rampSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 30000)
	}
	return samples
}

// writeWAV writes samples as a WAV file in dir and returns its path
func writeWAV(t *testing.T, dir, name string, samples []int16, rate int) string {
	t.Helper()
	data, err := EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
