package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSampleRate is the rate Whisper-family models consume
const DefaultSampleRate = 16000

// Decoder converts an audio file into mono PCM-16 samples at a fixed rate
type Decoder interface {
	Decode(ctx context.Context, path string) ([]int16, error)
	SampleRate() int
}

// WAVDecoder reads mono 16-bit PCM WAV files that are already at the target rate
type WAVDecoder struct {
	Rate int
}

func (d WAVDecoder) SampleRate() int { return d.Rate }

func (d WAVDecoder) Decode(ctx context.Context, path string) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if rate != d.Rate {
		return nil, fmt.Errorf("sample rate %d Hz does not match %d Hz", rate, d.Rate)
	}

	return samples, nil
}

// FFmpegDecoder shells out to ffmpeg to resample any container/codec to mono s16le
type FFmpegDecoder struct {
	Path string
	Rate int
}

func (d FFmpegDecoder) SampleRate() int { return d.Rate }

func (d FFmpegDecoder) Decode(ctx context.Context, path string) ([]int16, error) {
	bin := d.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	// ffmpeg -nostdin -v error -i input -f s16le -ac 1 -ar 16000 -
	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-v", "error",
		"-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(d.Rate),
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ffmpeg: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(samples)*2]), binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}

	return samples, nil
}

// AutoDecoder decodes conforming WAV files natively and hands everything else to ffmpeg
type AutoDecoder struct {
	WAV    WAVDecoder
	FFmpeg FFmpegDecoder
}

// NewAutoDecoder returns a decoder producing samples at rate
func NewAutoDecoder(ffmpegPath string, rate int) *AutoDecoder {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &AutoDecoder{
		WAV:    WAVDecoder{Rate: rate},
		FFmpeg: FFmpegDecoder{Path: ffmpegPath, Rate: rate},
	}
}

func (d *AutoDecoder) SampleRate() int { return d.WAV.Rate }

func (d *AutoDecoder) Decode(ctx context.Context, path string) ([]int16, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err := d.WAV.Decode(ctx, path)
		if err == nil {
			return samples, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	return d.FFmpeg.Decode(ctx, path)
}
