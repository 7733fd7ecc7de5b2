/*
Package autoscale decides when the cluster should grow or shrink.

The controller samples aggregate request rate and p95 latency on a fixed
interval. Load above the upper thresholds sustained long enough yields a
single-step scale-out intent; load below the lower thresholds for the
cool-down period yields a scale-in intent, clamped to the configured
worker range. Intents are published on the event bus; executing them is
the supervisor's job.
*/
package autoscale
