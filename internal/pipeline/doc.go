// Package pipeline drives a recording through segmentation, per-segment export
// and transcription, and ordered reassembly of the transcript. Every temporary
// file a run creates is removed before Run returns, on success and failure alike.
package pipeline
