package audio

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestWAVDecoder(t *testing.T) {
	dir := t.TempDir()
	samples := rampSamples(8000)
	path := writeWAV(t, dir, "clip.wav", samples, 16000)

	decoded, err := WAVDecoder{Rate: 16000}.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	if _, err := (WAVDecoder{Rate: 8000}).Decode(context.Background(), path); err == nil {
		t.Error("Expected error for sample rate mismatch")
	}
}

func TestAutoDecoderUsesNativeWAV(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, "clip.wav", rampSamples(1600), 16000)

	// An ffmpeg path that cannot exist proves the native path was taken
	decoder := NewAutoDecoder(filepath.Join(dir, "no-ffmpeg"), 16000)
	decoded, err := decoder.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded) != 1600 {
		t.Errorf("Expected 1600 samples, got %d", len(decoded))
	}
	if decoder.SampleRate() != 16000 {
		t.Errorf("Expected rate 16000, got %d", decoder.SampleRate())
	}
}

func TestAutoDecoderFallsBackToFFmpeg(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, "clip.wav", rampSamples(800), 8000)

	decoder := NewAutoDecoder(filepath.Join(dir, "no-ffmpeg"), 16000)
	if _, err := decoder.Decode(context.Background(), path); err == nil {
		t.Error("Expected ffmpeg fallback to fail with a missing binary")
	}
}

func TestFFmpegDecoderResamples(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	path := writeWAV(t, dir, "clip.wav", rampSamples(8000), 8000) // 1 second at 8kHz

	decoded, err := FFmpegDecoder{Path: ffmpeg, Rate: 16000}.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// Resampling may add or drop a few samples at the edges
	if len(decoded) < 15900 || len(decoded) > 16100 {
		t.Errorf("Expected about 16000 samples, got %d", len(decoded))
	}
}

func TestFFmpegDecoderCorruptInput(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.mp3")
	writeFile(t, path, []byte("definitely not audio"))

	if _, err := (FFmpegDecoder{Path: ffmpeg, Rate: 16000}).Decode(context.Background(), path); err == nil {
		t.Error("Expected error for corrupt input")
	}
}
