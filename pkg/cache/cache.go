package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

const shardCount = 16

// Options controls a single Set.
type Options struct {
	TTL       time.Duration
	Tags      []string
	EntityTag string
}

// Engine is a two-tier cache: a sharded in-process tier fronting an
// optional shared store. Writes go through to the shared tier; reads fall
// back to it on a local miss. When the shared store is unavailable the
// engine degrades to local-only operation.
type Engine struct {
	shards [shardCount]*shard
	shared SharedStore

	degraded atomic.Bool
}

type shard struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	tagIndex    map[string]map[string]struct{}
	entityIndex map[string]map[string]struct{}
}

type entry struct {
	value     []byte
	expiresAt time.Time
	tags      []string
	entityTag string
}

// NewEngine creates a cache engine. shared may be nil for local-only use.
func NewEngine(shared SharedStore) *Engine {
	e := &Engine{shared: shared}
	for i := range e.shards {
		e.shards[i] = &shard{
			entries:     make(map[string]*entry),
			tagIndex:    make(map[string]map[string]struct{}),
			entityIndex: make(map[string]map[string]struct{}),
		}
	}
	return e
}

func (e *Engine) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return e.shards[h.Sum32()%shardCount]
}

// Get returns the cached value for key, or a miss if absent or expired.
func (e *Engine) Get(ctx context.Context, key string) ([]byte, bool) {
	s := e.shardFor(key)
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()

	if ok {
		if time.Now().Before(ent.expiresAt) {
			metrics.CacheHits.WithLabelValues("local").Inc()
			return ent.value, true
		}
		// Expired entries are removed lazily
		s.mu.Lock()
		s.removeLocked(key)
		s.mu.Unlock()
	}

	if e.shared != nil && !e.degraded.Load() {
		value, ttl, err := e.shared.Get(ctx, key)
		if err == nil && value != nil {
			metrics.CacheHits.WithLabelValues("shared").Inc()
			// Repopulate the local tier with the remaining TTL
			e.setLocal(key, value, ttl, nil, "")
			return value, true
		}
		if err != nil {
			e.noteSharedError(err)
		}
	}

	metrics.CacheMisses.Inc()
	return nil, false
}

// Set upserts a value and updates the tag and entity indices.
func (e *Engine) Set(ctx context.Context, key string, value []byte, opts Options) {
	if opts.TTL <= 0 {
		opts.TTL = PolicyDynamic.TTL
	}

	e.setLocal(key, value, opts.TTL, opts.Tags, opts.EntityTag)

	if e.shared != nil && !e.degraded.Load() {
		if err := e.shared.Set(ctx, key, value, opts); err != nil {
			e.noteSharedError(err)
		}
	}
}

func (e *Engine) setLocal(key string, value []byte, ttl time.Duration, tags []string, entityTag string) {
	s := e.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)
	s.entries[key] = &entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
		tags:      tags,
		entityTag: entityTag,
	}
	for _, tag := range tags {
		if s.tagIndex[tag] == nil {
			s.tagIndex[tag] = make(map[string]struct{})
		}
		s.tagIndex[tag][key] = struct{}{}
	}
	if entityTag != "" {
		if s.entityIndex[entityTag] == nil {
			s.entityIndex[entityTag] = make(map[string]struct{})
		}
		s.entityIndex[entityTag][key] = struct{}{}
	}
}

// Delete removes a single key from both tiers.
func (e *Engine) Delete(ctx context.Context, key string) {
	s := e.shardFor(key)
	s.mu.Lock()
	s.removeLocked(key)
	s.mu.Unlock()

	if e.shared != nil && !e.degraded.Load() {
		if err := e.shared.Delete(ctx, key); err != nil {
			e.noteSharedError(err)
		}
	}
}

// InvalidateByTag removes every entry bearing the tag. The removal is
// atomic per shard, so a read that happens after InvalidateByTag returns
// never observes a tagged entry.
func (e *Engine) InvalidateByTag(ctx context.Context, tag string) {
	removed := 0
	for _, s := range e.shards {
		s.mu.Lock()
		for key := range s.tagIndex[tag] {
			s.removeLocked(key)
			removed++
		}
		delete(s.tagIndex, tag)
		s.mu.Unlock()
	}

	if e.shared != nil && !e.degraded.Load() {
		if err := e.shared.InvalidateByTag(ctx, tag); err != nil {
			e.noteSharedError(err)
		}
	}
	metrics.CacheInvalidations.WithLabelValues("tag").Add(float64(removed))
}

// InvalidateEntity removes every entry bound to the entity tag and, per
// the key namespace contract, every list-level tag stamped for the
// entity's resource ({resource}:list, {resource}:status:{s},
// {resource}:category:{c}).
func (e *Engine) InvalidateEntity(ctx context.Context, entityTag string) {
	removed := 0
	for _, s := range e.shards {
		s.mu.Lock()
		for key := range s.entityIndex[entityTag] {
			s.removeLocked(key)
			removed++
		}
		delete(s.entityIndex, entityTag)
		s.mu.Unlock()
	}

	if e.shared != nil && !e.degraded.Load() {
		if err := e.shared.InvalidateEntity(ctx, entityTag); err != nil {
			e.noteSharedError(err)
		}
	}
	metrics.CacheInvalidations.WithLabelValues("entity").Add(float64(removed))

	// List-level tags depend on the whole resource collection
	resource, _, found := strings.Cut(entityTag, ":")
	if !found {
		return
	}
	e.InvalidateByTag(ctx, resource+":list")
	for _, tag := range e.tagsWithPrefix(resource + ":status:") {
		e.InvalidateByTag(ctx, tag)
	}
	for _, tag := range e.tagsWithPrefix(resource + ":category:") {
		e.InvalidateByTag(ctx, tag)
	}
}

func (e *Engine) tagsWithPrefix(prefix string) []string {
	var tags []string
	for _, s := range e.shards {
		s.mu.RLock()
		for tag := range s.tagIndex {
			if strings.HasPrefix(tag, prefix) {
				tags = append(tags, tag)
			}
		}
		s.mu.RUnlock()
	}
	return tags
}

// removeLocked deletes an entry and its index references. Caller holds the
// shard write lock.
func (s *shard) removeLocked(key string) {
	ent, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	for _, tag := range ent.tags {
		if keys := s.tagIndex[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.tagIndex, tag)
			}
		}
	}
	if ent.entityTag != "" {
		if keys := s.entityIndex[ent.entityTag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.entityIndex, ent.entityTag)
			}
		}
	}
}

// Degraded reports whether the shared tier is currently unavailable.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// Len returns the number of live local entries, for stats and tests.
func (e *Engine) Len() int {
	n := 0
	now := time.Now()
	for _, s := range e.shards {
		s.mu.RLock()
		for _, ent := range s.entries {
			if now.Before(ent.expiresAt) {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

func (e *Engine) noteSharedError(err error) {
	if e.shared.Unavailable() {
		if e.degraded.CompareAndSwap(false, true) {
			log.WithComponent("cache").Warn().Err(err).Msg("shared store unavailable, degrading to local-only")
			metrics.CacheDegraded.Set(1)
			go e.watchRecovery()
		}
	}
}

// watchRecovery polls the shared store until the circuit closes again.
func (e *Engine) watchRecovery() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		// The breaker admits a trial request once its open interval lapses
		if err := e.shared.Ping(context.Background()); err == nil {
			e.degraded.Store(false)
			metrics.CacheDegraded.Set(0)
			log.WithComponent("cache").Info().Msg("shared store recovered")
			return
		}
	}
}
