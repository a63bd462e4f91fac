package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB)`)
	require.NoError(t, err)
	return db
}

func keys(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func put(ctx context.Context, tx DBTX, key string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kv(key, value) VALUES (?, ?)`, key, []byte("v"))
	return err
}

func TestWithTx_Commit(t *testing.T) {
	db := openDB(t)
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		if err := put(ctx, tx, "user"); err != nil {
			return err
		}
		return put(ctx, tx, "access_token")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, keys(t, db))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, put(ctx, tx, "user"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, keys(t, db))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openDB(t)
	defer func() {
		require.NotNil(t, recover(), "panic must propagate")
		assert.Equal(t, 0, keys(t, db))
	}()
	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, put(ctx, tx, "user"))
		panic("half-written")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Close())
	err := WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return nil })
	assert.ErrorContains(t, err, "begin tx")
}
