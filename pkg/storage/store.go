package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/domain"
)

var (
	bucketInspections = []byte("inspections")
	bucketComponents  = []byte("components")
	bucketCustomers   = []byte("customers")
	bucketSuppliers   = []byte("suppliers")
	bucketMigrations  = []byte("migrations")
)

// Filter matches entities whose serialized field equals the given value.
// Nested fields are not supported; list paths filter on top-level fields.
type Filter map[string]any

// Query describes a list request.
type Query struct {
	Filter     Filter
	Skip       int
	Limit      int
	Sort       string // field name, "-" prefix for descending
	Projection []string
}

// Store owns the BoltDB database and the typed repositories.
type Store struct {
	db *bolt.DB

	Inspections *BoltRepository[domain.Inspection]
	Components  *BoltRepository[domain.Component]
	Customers   *BoltRepository[domain.Customer]
	Suppliers   *BoltRepository[domain.Supplier]
}

// Open opens (creating if needed) the database under dataDir. dbPath, when
// non-empty, overrides the default location.
func Open(dataDir, dbPath string) (*Store, error) {
	if dbPath == "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, "aerosuite.db")
	}

	// Fail fast instead of blocking when another process holds the lock
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketInspections, bucketComponents, bucketCustomers, bucketSuppliers, bucketMigrations}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	s.Inspections = NewBoltRepository[domain.Inspection](db, bucketInspections, "inspection",
		func(i *domain.Inspection) *domain.Root { return &i.Root })
	s.Components = NewBoltRepository[domain.Component](db, bucketComponents, "component",
		func(c *domain.Component) *domain.Root { return &c.Root })
	s.Customers = NewBoltRepository[domain.Customer](db, bucketCustomers, "customer",
		func(c *domain.Customer) *domain.Root { return &c.Root })
	s.Suppliers = NewBoltRepository[domain.Supplier](db, bucketSuppliers, "supplier",
		func(s *domain.Supplier) *domain.Root { return &s.Root })
	return s, nil
}

// DB exposes the underlying database for the migration runner.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Ping verifies the database is reachable with a no-op read transaction.
func (s *Store) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
