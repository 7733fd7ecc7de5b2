package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aerosuite/platform/pkg/cache"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/log"
)

// CachedRepository layers the cache engine over a bolt repository.
// Single-id reads use the entity policy under "{collection}:{id}"; list
// reads use the dynamic policy keyed by a query fingerprint and tagged so
// writes invalidate them. Writes go straight through and invalidate.
type CachedRepository[T any] struct {
	repo   *BoltRepository[T]
	engine *cache.Engine
}

// NewCachedRepository wraps repo with the cache engine.
func NewCachedRepository[T any](repo *BoltRepository[T], engine *cache.Engine) *CachedRepository[T] {
	return &CachedRepository[T]{repo: repo, engine: engine}
}

// Collection returns the logical collection name.
func (c *CachedRepository[T]) Collection() string {
	return c.repo.Collection()
}

func (c *CachedRepository[T]) entityKey(id string) string {
	return c.repo.Collection() + ":" + id
}

// FindByID returns the entity, served from cache when possible.
func (c *CachedRepository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	key := c.entityKey(id)
	if data, ok := c.engine.Get(ctx, key); ok {
		entity := new(T)
		if err := json.Unmarshal(data, entity); err == nil {
			return entity, nil
		}
		// Corrupt entry; fall through to the repository
		c.engine.Delete(ctx, key)
	}

	entity, err := c.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(entity); err == nil {
		c.engine.Set(ctx, key, data, cache.PolicyEntity.Options(key))
	}
	return entity, nil
}

// FindAll returns the entities matching the query, served from cache when
// an identical query was answered recently.
func (c *CachedRepository[T]) FindAll(ctx context.Context, q Query) ([]*T, error) {
	key := c.listKey(q)
	if data, ok := c.engine.Get(ctx, key); ok {
		var out []*T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		c.engine.Delete(ctx, key)
	}

	out, err := c.repo.FindAll(q)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(out); err == nil {
		c.engine.Set(ctx, key, data, cache.PolicyDynamic.Options("", c.listTags(q)...))
	}
	return out, nil
}

// FindAllProjected bypasses the cache; projections are cheap after the
// filter has run and caching every projection shape bloats the key space.
func (c *CachedRepository[T]) FindAllProjected(ctx context.Context, q Query) ([]map[string]any, error) {
	return c.repo.FindAllProjected(q)
}

// Count returns the number of entities matching the filter.
func (c *CachedRepository[T]) Count(ctx context.Context, f Filter) (int, error) {
	return c.repo.Count(f)
}

// Exists reports whether at least one entity matches the filter.
func (c *CachedRepository[T]) Exists(ctx context.Context, f Filter) (bool, error) {
	return c.repo.Exists(f)
}

// ExistsID reports whether an entity with the given id exists.
func (c *CachedRepository[T]) ExistsID(ctx context.Context, id string) (bool, error) {
	if _, ok := c.engine.Get(ctx, c.entityKey(id)); ok {
		return true, nil
	}
	return c.repo.ExistsID(id)
}

// GroupCount groups entities by a top-level field.
func (c *CachedRepository[T]) GroupCount(ctx context.Context, field string) (map[string]int, error) {
	return c.repo.GroupCount(field)
}

// Save persists the entity and invalidates its cached reads.
func (c *CachedRepository[T]) Save(ctx context.Context, entity *T, root *domain.Root) error {
	if err := c.repo.Save(entity); err != nil {
		return err
	}
	c.engine.InvalidateEntity(ctx, c.entityKey(root.ID))
	return nil
}

// Delete removes the entity and invalidates its cached reads.
func (c *CachedRepository[T]) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(id); err != nil {
		return err
	}
	c.engine.InvalidateEntity(ctx, c.entityKey(id))
	return nil
}

// listKey fingerprints the query so identical list requests share a
// cache entry. Map keys marshal in sorted order, so the fingerprint is
// stable.
func (c *CachedRepository[T]) listKey(q Query) string {
	data, err := json.Marshal(q)
	if err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("failed to fingerprint query")
		return c.repo.Collection() + ":list:unfingerprinted"
	}
	sum := sha256.Sum256(data)
	return c.repo.Collection() + ":list:" + hex.EncodeToString(sum[:8])
}

// listTags returns the invalidation tags for a list entry: the collection
// list tag, plus status and category tags when the query filters on them.
func (c *CachedRepository[T]) listTags(q Query) []string {
	collection := c.repo.Collection()
	tags := []string{collection + ":list"}
	for _, field := range []string{"status", "category"} {
		if v, ok := q.Filter[field]; ok {
			tags = append(tags, fmt.Sprintf("%s:%s:%v", collection, field, v))
		}
	}
	return tags
}
