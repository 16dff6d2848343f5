// Package server exposes the job manager over HTTP: multipart uploads, job
// status and cancellation, websocket progress streams, and the health,
// config and Prometheus monitoring endpoints.
package server
