package migrate

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyRunsPendingInOrder(t *testing.T) {
	db := openDB(t)

	var order []string
	note := func(name string) func(tx *bolt.Tx) error {
		return func(tx *bolt.Tx) error {
			order = append(order, name)
			return nil
		}
	}

	runner, err := NewRunner(db, []Migration{
		{Name: "0001_first", Run: note("0001_first")},
		{Name: "0002_second", Run: note("0002_second")},
	})
	require.NoError(t, err)

	ran, err := runner.Apply()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_first", "0002_second"}, ran)
	assert.Equal(t, []string{"0001_first", "0002_second"}, order)

	applied, err := runner.Applied()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.False(t, applied[0].AppliedAt.IsZero())
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openDB(t)

	runs := 0
	runner, err := NewRunner(db, []Migration{
		{Name: "0001_once", Run: func(tx *bolt.Tx) error { runs++; return nil }},
	})
	require.NoError(t, err)

	_, err = runner.Apply()
	require.NoError(t, err)
	ran, err := runner.Apply()
	require.NoError(t, err)
	assert.Empty(t, ran)
	assert.Equal(t, 1, runs)
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	db := openDB(t)

	boom := errors.New("boom")
	runner, err := NewRunner(db, []Migration{
		{Name: "0001_ok", Run: func(tx *bolt.Tx) error { return nil }},
		{Name: "0002_fails", Run: func(tx *bolt.Tx) error { return boom }},
		{Name: "0003_never", Run: func(tx *bolt.Tx) error { t.Fatal("must not run"); return nil }},
	})
	require.NoError(t, err)

	ran, err := runner.Apply()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"0001_ok"}, ran)

	pending, err := runner.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_fails", "0003_never"}, pending)
}

func TestFailedMigrationRollsBackItsWrites(t *testing.T) {
	db := openDB(t)

	runner, err := NewRunner(db, []Migration{
		{Name: "0001_partial", Run: func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists([]byte("scratch"))
			if err != nil {
				return err
			}
			if err := b.Put([]byte("k"), []byte("v")); err != nil {
				return err
			}
			return errors.New("abort")
		}},
	})
	require.NoError(t, err)

	_, err = runner.Apply()
	require.Error(t, err)

	err = db.View(func(tx *bolt.Tx) error {
		assert.Nil(t, tx.Bucket([]byte("scratch")))
		return nil
	})
	require.NoError(t, err)
}

func TestDefaultsCreateBucketsAndBackfill(t *testing.T) {
	db := openDB(t)

	// An inspection persisted with null collections, predating the
	// eager-initialization change
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("inspections"))
		if err != nil {
			return err
		}
		return b.Put([]byte("insp-1"), []byte(`{"id":"insp-1","title":"legacy","items":null}`))
	})
	require.NoError(t, err)

	runner, err := NewRunner(db, Defaults())
	require.NoError(t, err)
	_, err = runner.Apply()
	require.NoError(t, err)

	err = db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{"inspections", "components", "customers", "suppliers", "model_registry", "drift_baselines"} {
			assert.NotNil(t, tx.Bucket([]byte(name)), name)
		}
		data := tx.Bucket([]byte("inspections")).Get([]byte("insp-1"))
		assert.Contains(t, string(data), `"items":[]`)
		assert.Contains(t, string(data), `"defects":[]`)
		return nil
	})
	require.NoError(t, err)
}
