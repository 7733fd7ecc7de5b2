/*
Package cluster implements the master/worker process model.

The supervisor re-executes its own binary once per worker slot; each
worker owns the HTTP listener on port+slot and shares only the Redis
backends with its siblings. A crashed worker is reforked after two
seconds; five crashes inside a minute escalate the slot and leave it
down. Workers report served requests and p95 latency over a control
pipe, feeding the autoscaling controller, whose scale intents the
supervisor executes by forking or draining one worker at a time.
*/
package cluster
