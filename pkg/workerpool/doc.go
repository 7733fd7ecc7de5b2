/*
Package workerpool provides a bounded pool for CPU-bound jobs.

Jobs are pure functions over serializable input. A single shared queue
feeds the workers; submission is non-blocking and rejects with queueFull
when the queue is at capacity, so callers see backpressure instead of
latency. Callers may cancel a job through its handle or bound it with a
timeout; the job observes either at its next safe point. A panicking job
fails its handle and restarts the worker slot with exponential backoff,
counted in the pool stats.
*/
package workerpool
