/*
Package health aggregates subordinate dependency checks into one
verdict: healthy, degraded or unhealthy.

The database is the critical dependency; everything else (cache, disk
headroom, backup freshness) only degrades the verdict. The startup gate
refuses to start a production process whose critical checks fail.
*/
package health
