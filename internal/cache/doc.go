// Package cache stores finished transcripts in Redis keyed by upload content,
// so resubmitting the same recording with the same model is answered without inference.
package cache
