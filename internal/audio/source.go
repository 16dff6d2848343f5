package audio

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DefaultFormats is the upload allow-list used when none is configured
var DefaultFormats = []string{"mp3", "m4a", "wav"}

// FormatOf returns the lower-cased extension of filename without the dot
func FormatOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// CheckFormat fails with a DecodeError when format is not in allowed
func CheckFormat(format string, allowed []string) error {
	if len(allowed) == 0 {
		allowed = DefaultFormats
	}
	if format == "" || !slices.Contains(allowed, format) {
		return &DecodeError{Format: format, Err: ErrUnsupportedFormat}
	}
	return nil
}

// Source is one uploaded recording persisted at Path.
// Decoding happens on first use and is shared by every segment export.
type Source struct {
	ID       string
	Filename string
	Format   string
	Path     string

	decoder Decoder

	once    sync.Once
	samples []int16
	err     error
}

// NewSource wraps the recording stored at path
func NewSource(id, filename, path string, decoder Decoder) *Source {
	return &Source{
		ID:       id,
		Filename: filename,
		Format:   FormatOf(filename),
		Path:     path,
		decoder:  decoder,
	}
}

// Samples returns the decoded PCM, decoding the file on the first call only
func (s *Source) Samples(ctx context.Context) ([]int16, error) {
	s.once.Do(func() {
		samples, err := s.decoder.Decode(ctx, s.Path)
		if err != nil {
			if ctx.Err() != nil {
				s.err = ctx.Err()
				return
			}
			s.err = &DecodeError{Format: s.Format, Err: err}
			return
		}
		s.samples = samples
	})
	return s.samples, s.err
}

// SampleRate is the rate of the samples returned by Samples
func (s *Source) SampleRate() int {
	return s.decoder.SampleRate()
}

// DurationMs returns the decoded duration in whole milliseconds
func (s *Source) DurationMs(ctx context.Context) (int64, error) {
	samples, err := s.Samples(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(samples)) * 1000 / int64(s.SampleRate()), nil
}

// sampleRange maps a segment onto sample indices, clamped to n
func sampleRange(seg Segment, rate, n int) (int, int) {
	start := int(seg.StartMs * int64(rate) / 1000)
	end := int(seg.EndMs * int64(rate) / 1000)
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}
