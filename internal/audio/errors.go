package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDuration is returned for a negative total duration or a non-positive chunk length.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrEmptyInput is returned when the decoded source holds no audio.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnsupportedFormat is wrapped in a DecodeError when the declared extension is not allowed.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DecodeError reports a source that could not be decoded to PCM
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a segment that could not be exported as an artifact
type EncodeError struct {
	Index int
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("export segment %d: %v", e.Index, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
