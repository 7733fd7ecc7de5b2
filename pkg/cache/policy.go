package cache

import "time"

// Policy bundles the TTL conventions for a class of cached data.
type Policy struct {
	Name string
	TTL  time.Duration
}

var (
	// PolicyEntity covers read-through single-id lookups.
	PolicyEntity = Policy{Name: "entity", TTL: 5 * time.Minute}

	// PolicyDynamic covers query results keyed by fingerprint.
	PolicyDynamic = Policy{Name: "dynamic", TTL: time.Minute}

	// PolicyStatic covers long-lived data invalidated manually.
	PolicyStatic = Policy{Name: "static", TTL: 12 * time.Hour}
)

// Options returns Set options for the policy with the given tags.
func (p Policy) Options(entityTag string, tags ...string) Options {
	return Options{TTL: p.TTL, Tags: tags, EntityTag: entityTag}
}
