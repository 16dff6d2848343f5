package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/skypro1111/audio-transcriber/internal/audio"
	"github.com/skypro1111/audio-transcriber/internal/transcription"
)

// Error kind names reported to callers and used as metric labels
const (
	KindInvalidDuration      = "InvalidDurationError"
	KindEmptyInput           = "EmptyInputError"
	KindDecode               = "DecodeError"
	KindEncode               = "EncodeError"
	KindInference            = "InferenceError"
	KindModelLoad            = "ModelLoadError"
	KindIncompleteTranscript = "IncompleteTranscriptError"
	KindCanceled             = "Canceled"
	KindInternal             = "Internal"
)

// SegmentError ties a failure to the segment being processed
type SegmentError struct {
	Index int
	Total int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// IncompleteTranscriptError reports fragments that do not line up with the segments
type IncompleteTranscriptError struct {
	Fragments int
	Segments  int
}

func (e *IncompleteTranscriptError) Error() string {
	return fmt.Sprintf("incomplete transcript: %d fragments for %d segments", e.Fragments, e.Segments)
}

// Kind classifies err into one of the Kind* names
func Kind(err error) string {
	var (
		decodeErr     *audio.DecodeError
		encodeErr     *audio.EncodeError
		inferenceErr  *transcription.InferenceError
		loadErr       *transcription.ModelLoadError
		incompleteErr *IncompleteTranscriptError
	)

	switch {
	case err == nil:
		return ""
	// Typed failures win over context errors: an HTTP client timeout inside
	// an inference call also matches context.DeadlineExceeded.
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &encodeErr):
		return KindEncode
	case errors.As(err, &inferenceErr):
		return KindInference
	case errors.As(err, &loadErr):
		return KindModelLoad
	case errors.As(err, &incompleteErr):
		return KindIncompleteTranscript
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, audio.ErrInvalidDuration):
		return KindInvalidDuration
	case errors.Is(err, audio.ErrEmptyInput):
		return KindEmptyInput
	default:
		return KindInternal
	}
}

// IsValidation reports failures caused by the request itself rather than the runtime
func IsValidation(err error) bool {
	return errors.Is(err, audio.ErrInvalidDuration) ||
		errors.Is(err, audio.ErrEmptyInput) ||
		errors.Is(err, audio.ErrUnsupportedFormat)
}

// SegmentIndex returns the index of the segment err originated from, if any
func SegmentIndex(err error) (int, bool) {
	var segErr *SegmentError
	if errors.As(err, &segErr) {
		return segErr.Index, true
	}
	return 0, false
}
