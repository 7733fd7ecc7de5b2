/*
Package storage persists domain aggregates as JSON documents in BoltDB.

Each aggregate type gets its own bucket behind a typed repository with
filter, sort, skip, limit and projection on list reads. Saves enforce
optimistic concurrency: an update whose version token no longer matches
the stored document fails with conflict and the caller re-reads. Queries
crossing the slow threshold are logged and counted.

CachedRepository layers the cache engine over a repository for
read-through single-id and fingerprinted list reads.
*/
package storage
