// Package transcription implements the model provider used by the pipeline.
// It loads one model handle per size, serializes inference on each handle,
// and talks to speech-to-text backends over HTTP: a whisper.cpp server or any
// OpenAI-compatible transcription endpoint.
package transcription
