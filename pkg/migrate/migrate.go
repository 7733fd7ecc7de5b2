package migrate

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/log"
)

var bucketChangelog = []byte("migrations")

// Migration is one named schema change. Run executes inside the same
// write transaction that records the changelog entry, so a migration
// either applies fully or not at all.
type Migration struct {
	Name string
	Run  func(tx *bolt.Tx) error
}

// Record is one changelog entry.
type Record struct {
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Runner applies migrations in registration order, skipping those the
// changelog already lists. Re-running a fully migrated database is a
// no-op.
type Runner struct {
	db         *bolt.DB
	migrations []Migration
}

// NewRunner creates a runner over the database.
func NewRunner(db *bolt.DB, migrations []Migration) (*Runner, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChangelog)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create changelog bucket: %w", err)
	}
	return &Runner{db: db, migrations: migrations}, nil
}

// Applied returns the changelog in application order.
func (r *Runner) Applied() ([]Record, error) {
	var records []Record
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChangelog).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt changelog entry %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Pending returns the names of migrations not yet applied.
func (r *Runner) Pending() ([]string, error) {
	applied, err := r.appliedSet()
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, m := range r.migrations {
		if _, done := applied[m.Name]; !done {
			pending = append(pending, m.Name)
		}
	}
	return pending, nil
}

// Apply runs every pending migration in order and returns the names it
// applied. The first failure stops the run; earlier migrations stay
// applied.
func (r *Runner) Apply() ([]string, error) {
	applied, err := r.appliedSet()
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("migrate")
	var ran []string
	for _, m := range r.migrations {
		if _, done := applied[m.Name]; done {
			continue
		}
		err := r.db.Update(func(tx *bolt.Tx) error {
			if err := m.Run(tx); err != nil {
				return err
			}
			rec := Record{Name: m.Name, AppliedAt: time.Now().UTC()}
			data, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			return tx.Bucket(bucketChangelog).Put([]byte(m.Name), data)
		})
		if err != nil {
			return ran, fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		logger.Info().Str("migration", m.Name).Msg("migration applied")
		ran = append(ran, m.Name)
	}
	return ran, nil
}

func (r *Runner) appliedSet() (map[string]struct{}, error) {
	set := make(map[string]struct{})
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChangelog).ForEach(func(k, v []byte) error {
			set[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
