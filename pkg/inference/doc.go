/*
Package inference serves predictions from loaded model instances.

The runtime loads models through a pluggable Loader and offers three
paths: single inference, batch inference, and a queued path returning a
future. Each model has a bounded FIFO queue and a concurrency cap; a
full queue rejects rather than blocks. Consecutive failures past the
threshold mark the model unhealthy without unloading it, and requests
are refused until an operator clears the mark.
*/
package inference
