package audio

import (
	"fmt"
	"time"
)

// DefaultChunkLength is the segment length used when none is configured (10 minutes)
const DefaultChunkLength int64 = 10 * 60 * 1000

// Segment is the half-open interval [StartMs, EndMs) of the source timeline
type Segment struct {
	Index   int   `json:"index"`
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Duration returns the length of the segment
func (s Segment) Duration() time.Duration {
	return time.Duration(s.EndMs-s.StartMs) * time.Millisecond
}

func (s Segment) String() string {
	return fmt.Sprintf("segment %d [%dms, %dms)", s.Index, s.StartMs, s.EndMs)
}

// Split partitions [0, totalMs) into consecutive segments of chunkMs.
// The last segment is clipped to totalMs; a duration equal to chunkMs yields one segment.
func Split(totalMs, chunkMs int64) ([]Segment, error) {
	if totalMs < 0 {
		return nil, fmt.Errorf("%w: total duration %dms is negative", ErrInvalidDuration, totalMs)
	}
	if chunkMs <= 0 {
		return nil, fmt.Errorf("%w: chunk length must be positive, got %dms", ErrInvalidDuration, chunkMs)
	}
	if totalMs == 0 {
		return nil, ErrEmptyInput
	}

	count := totalMs / chunkMs
	if totalMs%chunkMs != 0 {
		count++
	}
	segments := make([]Segment, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * chunkMs
		end := totalMs
		if totalMs-start > chunkMs {
			end = start + chunkMs
		}
		segments = append(segments, Segment{Index: int(i), StartMs: start, EndMs: end})
	}

	return segments, nil
}
