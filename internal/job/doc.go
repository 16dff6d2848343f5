// Package job runs pipeline transcriptions asynchronously for the HTTP service.
//
// Submitted uploads are spooled to disk and queued behind a bounded number of
// concurrently running jobs. Each job moves through pending, processing and one
// of completed, failed or canceled; progress events are fanned out to any
// number of subscribers and finished jobs expire after a configurable TTL.
package job
