/*
Package perf tracks per-model serving statistics over sliding windows.

Each (model, metric) series keeps count, sum, sum of squares and failure
counts in ring buckets for the 1m, 5m, 1h and 24h windows. Recording is
constant-time and non-blocking; when the intake buffer is full, samples
are counted in an overflow counter rather than dropped silently.
Aggregates are rolled up on demand.
*/
package perf
