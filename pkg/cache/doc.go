/*
Package cache implements AeroSuite's multi-level cache with tagged
invalidation.

The engine fronts a sharded in-process tier over an optional shared Redis
tier. Entries carry a TTL, a set of tags, and an optional entity tag.
Invalidation by tag removes every entry bearing the tag; invalidation by
entity additionally sweeps the list-level tags stamped for the entity's
resource ({resource}:list, {resource}:status:{s}, {resource}:category:{c}),
so list results never outlive a write to one of their members.

# Key namespaces

	{resource}:{id}              single entity (ENTITY policy, 5m TTL)
	{resource}:list:{queryFp}    query results   (DYNAMIC policy, 1m TTL)
	{resource}:status:{s}        status slices
	{resource}:category:{c}      category slices

# Degraded mode

Shared-store operations run behind a circuit breaker. When Redis becomes
unreachable the breaker opens, the engine marks itself degraded and serves
local-only until a background probe sees the store recover. Entries are
never served past their TTL in either mode.

Reads take a shard read-lock only; index maintenance runs under a single
writer per shard.
*/
package cache
