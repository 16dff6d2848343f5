package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// Artifact is one exported segment on disk. It is only valid until Release.
type Artifact struct {
	Path    string
	Segment Segment
	Size    int

	logger *slog.Logger
}

// Release deletes the artifact file. An already missing file is not an error
// and any other failure is logged rather than returned.
func (a *Artifact) Release() {
	if a == nil || a.Path == "" {
		return
	}
	RemoveQuietly(a.logger, a.Path)
}

// RemoveQuietly deletes path, logging failures other than fs.ErrNotExist
func RemoveQuietly(logger *slog.Logger, path string) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	if logger != nil {
		logger.Warn("Failed to remove temporary file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Exporter materializes segments of a Source as WAV files under Dir
type Exporter struct {
	dir    string
	logger *slog.Logger
}

// NewExporter creates an exporter writing into dir (os.TempDir when empty)
func NewExporter(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger}
}

// Export slices seg out of the decoded source and writes it as mono PCM-16 WAV.
// The caller must Release the returned artifact.
func (e *Exporter) Export(ctx context.Context, src *Source, seg Segment) (*Artifact, error) {
	samples, err := src.Samples(ctx)
	if err != nil {
		return nil, err
	}

	start, end := sampleRange(seg, src.SampleRate(), len(samples))
	data, err := EncodeWAV(samples[start:end], src.SampleRate())
	if err != nil {
		return nil, &EncodeError{Index: seg.Index, Err: err}
	}

	f, err := os.CreateTemp(e.dir, fmt.Sprintf("chunk-%03d-*.wav", seg.Index))
	if err != nil {
		return nil, &EncodeError{Index: seg.Index, Err: err}
	}

	artifact := &Artifact{Path: f.Name(), Segment: seg, Size: len(data), logger: e.logger}

	if _, err := f.Write(data); err != nil {
		f.Close()
		artifact.Release()
		return nil, &EncodeError{Index: seg.Index, Err: err}
	}
	if err := f.Close(); err != nil {
		artifact.Release()
		return nil, &EncodeError{Index: seg.Index, Err: err}
	}

	e.logger.Debug("Exported segment",
		slog.Int("index", seg.Index),
		slog.Int64("start_ms", seg.StartMs),
		slog.Int64("end_ms", seg.EndMs),
		slog.Int("bytes", len(data)),
		slog.String("path", artifact.Path),
	)

	return artifact, nil
}
