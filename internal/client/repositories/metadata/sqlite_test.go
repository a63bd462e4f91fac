package metadata

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

// repositories runs each contract test against both implementations.
func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"sqlite": NewSQLiteRepository(setupDB(t)),
		"memory": NewMemoryRepository(),
	}
}

func TestSetAndGet_InsertThenGet(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))

			v, err := r.Get(ctx, "k1")
			require.NoError(t, err)
			require.Equal(t, []byte{0x01, 0x02}, v)
		})
	}
}

func TestGet_NotExists_ReturnsNilNil(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			v, err := r.Get(context.Background(), "absent")
			require.NoError(t, err)
			require.Nil(t, v)
		})
	}
}

func TestSet_UpsertOverwritesValue(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Set(ctx, "k", []byte("old")))
			require.NoError(t, r.Set(ctx, "k", []byte("new")))

			v, err := r.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, []byte("new"), v)
		})
	}
}

func TestList_ReturnsAllPairs(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Set(ctx, "a", []byte{0xAA}))
			require.NoError(t, r.Set(ctx, "b", []byte{0xBB, 0xCC}))

			m, err := r.List(ctx)
			require.NoError(t, err)
			assert.Len(t, m, 2)
			assert.Equal(t, []byte{0xAA}, m["a"])
			assert.Equal(t, []byte{0xBB, 0xCC}, m["b"])
		})
	}
}

func TestDelete_RemovesKey_AndIsIdempotent(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Set(ctx, "x", []byte{0x01}))
			require.NoError(t, r.Delete(ctx, "x"))

			v, err := r.Get(ctx, "x")
			require.NoError(t, err)
			require.Nil(t, v)

			require.NoError(t, r.Delete(ctx, "x"))
		})
	}
}

func TestClear_RemovesAllKeys(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Set(ctx, "a", []byte{1}))
			require.NoError(t, r.Set(ctx, "b", []byte{2}))
			require.NoError(t, r.Clear(ctx))

			m, err := r.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, m)
		})
	}
}

func TestBatch_CommitsAllOrNothing(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Set(ctx, "keep", []byte("1")))

			err := r.Batch(ctx, func(ctx context.Context, tx Repository) error {
				require.NoError(t, tx.Set(ctx, "a", []byte("A")))
				require.NoError(t, tx.Delete(ctx, "keep"))
				return errors.New("boom")
			})
			require.Error(t, err)

			v, err := r.Get(ctx, "a")
			require.NoError(t, err)
			assert.Nil(t, v, "rolled back write must not be visible")
			v, err = r.Get(ctx, "keep")
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v, "rolled back delete must not apply")

			err = r.Batch(ctx, func(ctx context.Context, tx Repository) error {
				if err := tx.Set(ctx, "a", []byte("A")); err != nil {
					return err
				}
				return tx.Set(ctx, "b", []byte("B"))
			})
			require.NoError(t, err)

			m, err := r.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"keep": []byte("1"), "a": []byte("A"), "b": []byte("B")}, m)
		})
	}
}

func TestBatch_SQLiteRollbackOnPanic(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	defer func() {
		require.NotNil(t, recover(), "expected panic to propagate")
		v, err := r.Get(ctx, "p")
		require.NoError(t, err)
		require.Nil(t, v, "must rollback on panic")
	}()

	_ = r.Batch(ctx, func(ctx context.Context, tx Repository) error {
		require.NoError(t, tx.Set(ctx, "p", []byte("x")))
		panic("kaput")
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	src := []byte("abc")
	require.NoError(t, r.Set(ctx, "k", src))
	src[0] = 'X'

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), v)

	v[1] = 'Y'
	again, _ := r.Get(ctx, "k")
	require.Equal(t, []byte("abc"), again)
}

func TestSQLite_DBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get metadata[k]")

	err = r.Set(ctx, "k", []byte("v"))
	require.ErrorContains(t, err, "failed to set metadata[k]")

	err = r.Delete(ctx, "k")
	require.ErrorContains(t, err, "failed to delete metadata[k]")

	err = r.Clear(ctx)
	require.ErrorContains(t, err, "failed to clear metadata")

	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to list metadata")

	err = r.Batch(ctx, func(ctx context.Context, tx Repository) error { return nil })
	require.ErrorContains(t, err, "metadata batch: begin tx")
}
