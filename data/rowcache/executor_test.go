//go:build unit
// +build unit

package rowcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vortex-fintech/pgexec/data/postgres"
	"github.com/vortex-fintech/pgexec/data/rowcache"
)

func TestExecutor_ExecThenQuerySeesCommittedRows(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	ctx := context.Background()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	cfg := postgres.DefaultPoolConfig()
	cfg.DSN = "postgres://u:p@localhost:5432/db?sslmode=disable"
	cfg.Retries = 1
	cfg.RetryDelay = 0
	pool, err := postgres.Open(ctx, cfg, postgres.WithOpener(postgres.SQLOpener{DB: db}))
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		pool.CloseAll()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	ex := postgres.NewExecutor(pool, postgres.WithRowCache(cache))

	const q = "SELECT id, n, label, ratio FROM t WHERE id = $1"
	cols := []string{"id", "n", "label", "ratio"}

	mock.ExpectBegin()
	mock.ExpectQuery(q).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), int64(10), "a", 0.5))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t SET n = $1 WHERE id = $2").WithArgs(20, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(q).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), int64(20), "a", 0.5))
	mock.ExpectRollback()

	first, err := ex.Query(ctx, "SELECT id, n, label, ratio FROM t WHERE id = %s", 1)
	require.NoError(t, err)
	assert.Equal(t, []postgres.Row{{"id": int64(1), "n": int64(10), "label": "a", "ratio": 0.5}}, first)

	// served from Redis with the same types
	cached, err := ex.Query(ctx, "SELECT id, n, label, ratio FROM t WHERE id = %s", 1)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	_, err = ex.Exec(ctx, "UPDATE t SET n = %s WHERE id = %s", []any{20, 1})
	require.NoError(t, err)
	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	assert.True(t, mr.Exists(rowcache.DefaultPrefix+"gen"))

	after, err := ex.Query(ctx, "SELECT id, n, label, ratio FROM t WHERE id = %s", 1)
	require.NoError(t, err)
	assert.Equal(t, []postgres.Row{{"id": int64(1), "n": int64(20), "label": "a", "ratio": 0.5}}, after)
}
