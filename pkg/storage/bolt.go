package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

// slowQueryThreshold is the latency above which a query is logged and
// counted as slow.
const slowQueryThreshold = 100 * time.Millisecond

// BoltRepository persists one aggregate type as JSON documents in a
// dedicated bucket. Saves enforce optimistic concurrency through the
// aggregate's version token.
type BoltRepository[T any] struct {
	db         *bolt.DB
	bucket     []byte
	collection string
	rootOf     func(*T) *domain.Root
}

// NewBoltRepository creates a repository over the given bucket. rootOf
// must return the embedded aggregate root of an entity.
func NewBoltRepository[T any](db *bolt.DB, bucket []byte, collection string, rootOf func(*T) *domain.Root) *BoltRepository[T] {
	return &BoltRepository[T]{db: db, bucket: bucket, collection: collection, rootOf: rootOf}
}

// Collection returns the logical collection name.
func (r *BoltRepository[T]) Collection() string {
	return r.collection
}

// FindByID returns the entity with the given id, or notFound.
func (r *BoltRepository[T]) FindByID(id string) (*T, error) {
	defer r.observe("findById")()

	var entity *T
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(r.bucket).Get([]byte(id))
		if data == nil {
			return apperr.NotFound("%s %s not found", r.collection, id)
		}
		entity = new(T)
		if err := json.Unmarshal(data, entity); err != nil {
			return fmt.Errorf("failed to unmarshal %s %s: %w", r.collection, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// FindAll returns the entities matching the query, after filter, sort,
// skip and limit are applied in that order.
func (r *BoltRepository[T]) FindAll(q Query) ([]*T, error) {
	defer r.observe("findAll")()

	docs, err := r.scan(q.Filter)
	if err != nil {
		return nil, err
	}
	sortDocs(docs, q.Sort)
	docs = window(docs, q.Skip, q.Limit)

	out := make([]*T, 0, len(docs))
	for _, d := range docs {
		entity := new(T)
		if err := json.Unmarshal(d.raw, entity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", r.collection, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

// FindAllProjected behaves like FindAll but returns documents trimmed to
// the projected fields. The id field is always included.
func (r *BoltRepository[T]) FindAllProjected(q Query) ([]map[string]any, error) {
	defer r.observe("findAllProjected")()

	docs, err := r.scan(q.Filter)
	if err != nil {
		return nil, err
	}
	sortDocs(docs, q.Sort)
	docs = window(docs, q.Skip, q.Limit)

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		if len(q.Projection) == 0 {
			out = append(out, d.fields)
			continue
		}
		trimmed := map[string]any{"id": d.fields["id"]}
		for _, field := range q.Projection {
			if v, ok := d.fields[field]; ok {
				trimmed[field] = v
			}
		}
		out = append(out, trimmed)
	}
	return out, nil
}

// Count returns the number of entities matching the filter.
func (r *BoltRepository[T]) Count(f Filter) (int, error) {
	defer r.observe("count")()

	docs, err := r.scan(f)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Exists reports whether at least one entity matches the filter.
func (r *BoltRepository[T]) Exists(f Filter) (bool, error) {
	n, err := r.Count(f)
	return n > 0, err
}

// ExistsID reports whether an entity with the given id exists.
func (r *BoltRepository[T]) ExistsID(id string) (bool, error) {
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(r.bucket).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// GroupCount groups entities by the given top-level field and returns the
// count per value. Entities missing the field are skipped.
func (r *BoltRepository[T]) GroupCount(field string) (map[string]int, error) {
	defer r.observe("groupCount")()

	docs, err := r.scan(nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, d := range docs {
		if v, ok := d.fields[field]; ok {
			counts[fmt.Sprint(v)]++
		}
	}
	return counts, nil
}

// Save persists the entity. A new entity (version 0) is inserted with
// version 1; an existing entity is updated only when its version token
// matches the stored one, otherwise the save fails with conflict.
func (r *BoltRepository[T]) Save(entity *T) error {
	defer r.observe("save")()

	root := r.rootOf(entity)
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(r.bucket)
		current := bucket.Get([]byte(root.ID))

		switch {
		case current == nil && root.Version != 0:
			return apperr.NotFound("%s %s not found", r.collection, root.ID)
		case current != nil:
			var stored struct {
				Version uint64 `json:"version"`
			}
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("failed to read stored version: %w", err)
			}
			if stored.Version != root.Version {
				return apperr.New(apperr.KindConflict, "%s %s was modified concurrently (version %d, expected %d)",
					r.collection, root.ID, stored.Version, root.Version)
			}
		}

		root.Version++
		data, err := json.Marshal(entity)
		if err != nil {
			root.Version--
			return fmt.Errorf("failed to marshal %s: %w", r.collection, err)
		}
		if err := bucket.Put([]byte(root.ID), data); err != nil {
			root.Version--
			return fmt.Errorf("failed to store %s: %w", r.collection, err)
		}
		return nil
	})
}

// Delete removes the entity with the given id, or returns notFound.
func (r *BoltRepository[T]) Delete(id string) error {
	defer r.observe("delete")()

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(r.bucket)
		if bucket.Get([]byte(id)) == nil {
			return apperr.NotFound("%s %s not found", r.collection, id)
		}
		return bucket.Delete([]byte(id))
	})
}

type doc struct {
	raw    []byte
	fields map[string]any
}

// scan reads every document in the bucket and keeps those matching the
// filter. Buckets are small enough that a full scan beats maintaining
// secondary indexes.
func (r *BoltRepository[T]) scan(f Filter) ([]doc, error) {
	var docs []doc
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).ForEach(func(k, v []byte) error {
			var fields map[string]any
			if err := json.Unmarshal(v, &fields); err != nil {
				return fmt.Errorf("failed to unmarshal %s %s: %w", r.collection, k, err)
			}
			if !matches(fields, f) {
				return nil
			}
			raw := make([]byte, len(v))
			copy(raw, v)
			docs = append(docs, doc{raw: raw, fields: fields})
			return nil
		})
	})
	return docs, err
}

func matches(fields map[string]any, f Filter) bool {
	for field, want := range f {
		got, ok := fields[field]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func sortDocs(docs []doc, key string) {
	if key == "" {
		key = "createdAt"
	}
	desc := strings.HasPrefix(key, "-")
	field := strings.TrimPrefix(key, "-")

	sort.SliceStable(docs, func(i, j int) bool {
		less := compareValues(docs[i].fields[field], docs[j].fields[field])
		if desc {
			return !less
		}
		return less
	})
}

// compareValues orders JSON values: numbers numerically, everything else
// by string form. RFC 3339 timestamps order correctly as strings.
func compareValues(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func window(docs []doc, skip, limit int) []doc {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// observe times one repository operation, recording and logging it when
// it crosses the slow-query threshold.
func (r *BoltRepository[T]) observe(op string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		if elapsed > slowQueryThreshold {
			metrics.SlowQueries.WithLabelValues(r.collection).Inc()
			log.WithComponent("storage").Warn().
				Str("collection", r.collection).
				Str("operation", op).
				Dur("elapsed", elapsed).
				Msg("slow query")
		}
	}
}
