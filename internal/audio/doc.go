// Package audio turns an uploaded recording into transcription-sized units.
// It decodes the source once to mono PCM, splits the timeline into fixed-length
// segments, and exports each segment as a short-lived WAV file for the model.
package audio
