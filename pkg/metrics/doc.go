/*
Package metrics defines AeroSuite's Prometheus metrics.

All metrics are package-level vars registered at init and exported at
/metrics via the promhttp handler. The Collector goroutine periodically
refreshes the domain gauges from the store; everything else is updated
inline by the owning component.
*/
package metrics
