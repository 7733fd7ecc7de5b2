/*
Package registry is the durable model registry: named models with
monotonic, immutable version records and per-version deployment stages.

At most one version of a model is in production and at most one in
staging; promoting a version archives the previous occupant. Stage
transitions are serialized per model name.
*/
package registry
