package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/metrics"
)

// driver transcribes the segments of one source strictly in index order
type driver struct {
	runID      string
	model      Transcriber
	source     *audio.Source
	exporter   *audio.Exporter
	policy     Policy
	logger     *slog.Logger
	metrics    *metrics.Metrics
	onProgress ProgressFunc
}

// run returns one fragment per segment, plus the failures recorded under PolicyContinue.
// Under PolicyFailFast the first failure is returned as a *SegmentError.
func (d *driver) run(ctx context.Context, segments []audio.Segment) ([]Fragment, []*SegmentError, error) {
	total := len(segments)
	fragments := make([]Fragment, 0, total)
	var failed []*SegmentError
	var cumulative string

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, nil, &SegmentError{Index: seg.Index, Total: total, Err: err}
		}

		d.onProgress.emit(Progress{
			RunID:  d.runID,
			Index:  seg.Index,
			Total:  total,
			Status: StatusTranscribing,
			Text:   cumulative,
			Ratio:  float64(seg.Index) / float64(total),
		})

		start := time.Now()
		text, err := d.transcribeSegment(ctx, seg)
		if err != nil {
			d.metrics.RecordSegmentFailed()
			segErr := &SegmentError{Index: seg.Index, Total: total, Err: err}

			d.onProgress.emit(Progress{
				RunID:  d.runID,
				Index:  seg.Index,
				Total:  total,
				Status: StatusFailed,
				Text:   cumulative,
				Ratio:  float64(seg.Index+1) / float64(total),
				Error:  err.Error(),
			})

			if d.policy != PolicyContinue || ctx.Err() != nil {
				return nil, nil, segErr
			}

			d.logger.Warn("Segment failed, continuing",
				slog.Int("index", seg.Index),
				slog.Int("total", total),
				slog.String("kind", Kind(err)),
				slog.String("error", err.Error()),
			)
			fragments = append(fragments, Fragment{Index: seg.Index, Failed: true, Error: err.Error()})
			failed = append(failed, segErr)
			continue
		}

		fragments = append(fragments, Fragment{Index: seg.Index, Text: text})
		cumulative = appendText(cumulative, text)

		d.logger.Info("Segment transcribed",
			slog.Int("index", seg.Index),
			slog.Int("total", total),
			slog.Duration("elapsed", time.Since(start)),
		)

		d.onProgress.emit(Progress{
			RunID:  d.runID,
			Index:  seg.Index,
			Total:  total,
			Status: StatusDone,
			Text:   cumulative,
			Ratio:  float64(seg.Index+1) / float64(total),
		})
	}

	if len(failed) == total {
		return nil, nil, failed[0]
	}

	return fragments, failed, nil
}

// transcribeSegment exports seg, runs the model on it and deletes the artifact
func (d *driver) transcribeSegment(ctx context.Context, seg audio.Segment) (string, error) {
	artifact, err := d.exporter.Export(ctx, d.source, seg)
	if err != nil {
		return "", err
	}
	defer artifact.Release()

	d.metrics.RecordSegmentExported(artifact.Size)

	return d.model.Transcribe(ctx, artifact.Path)
}
