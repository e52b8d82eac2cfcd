// Package jobs manages the lifecycle of embedding sync jobs: creation
// with single-flight enforcement, an in-process FIFO drain loop, durable
// progress persistence, cooperative cancellation, and redacted error
// summaries on failure.
//
// At most one job is in the queued or running state at any time, across
// all process instances sharing the store. The guarantee is carried by
// two store-backed locks (one scoping creation, one scoping execution),
// not by the in-process queue, which is per-instance and best-effort.
package jobs
