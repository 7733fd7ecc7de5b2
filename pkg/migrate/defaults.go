package migrate

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"
)

// Defaults is the platform's migration history. Append only; never
// reorder or rename applied entries.
func Defaults() []Migration {
	return []Migration{
		{
			Name: "0001_core_buckets",
			Run:  createBuckets("inspections", "components", "customers"),
		},
		{
			Name: "0002_supplier_bucket",
			Run:  createBuckets("suppliers"),
		},
		{
			Name: "0003_ml_buckets",
			Run:  createBuckets("model_registry", "drift_baselines"),
		},
		{
			// Inspections persisted before collections were initialized
			// eagerly can carry null item/defect/attachment arrays.
			Name: "0004_inspection_collections",
			Run:  backfillInspectionCollections,
		},
	}
}

func createBuckets(names ...string) func(tx *bolt.Tx) error {
	return func(tx *bolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

func backfillInspectionCollections(tx *bolt.Tx) error {
	bucket := tx.Bucket([]byte("inspections"))
	if bucket == nil {
		return nil
	}

	type patch struct {
		key []byte
		doc map[string]any
	}
	var patches []patch
	err := bucket.ForEach(func(k, v []byte) error {
		var doc map[string]any
		if err := json.Unmarshal(v, &doc); err != nil {
			return nil // skip unreadable entries rather than abort
		}
		changed := false
		for _, field := range []string{"items", "defects", "attachments"} {
			if doc[field] == nil {
				doc[field] = []any{}
				changed = true
			}
		}
		if changed {
			key := make([]byte, len(k))
			copy(key, k)
			patches = append(patches, patch{key: key, doc: doc})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range patches {
		data, err := json.Marshal(p.doc)
		if err != nil {
			return err
		}
		if err := bucket.Put(p.key, data); err != nil {
			return err
		}
	}
	return nil
}
