//go:build unit
// +build unit

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vortex-fintech/pgexec/data/postgres"
	"github.com/vortex-fintech/pgexec/foundation/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (logger.LoggerInterface, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

func testConfig() postgres.PoolConfig {
	cfg := postgres.DefaultPoolConfig()
	cfg.DSN = "postgres://u:p@localhost:5432/db?sslmode=disable"
	cfg.Retries = 1
	cfg.RetryDelay = 0
	return cfg
}

type stubBackend struct {
	conn     *stubConn
	closeErr error
	pingErr  error
	stats    postgres.Stats

	acquired atomic.Int32
	closed   atomic.Int32
}

func (b *stubBackend) Acquire(context.Context) (postgres.BackendConn, error) {
	b.acquired.Add(1)
	if b.conn == nil {
		return &stubConn{tx: &stubTx{}}, nil
	}
	return b.conn, nil
}

func (b *stubBackend) Ping(context.Context) error { return b.pingErr }
func (b *stubBackend) Stats() postgres.Stats      { return b.stats }

func (b *stubBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

type stubConn struct {
	tx           *stubTx
	beginErr     error
	releaseErr   error
	releasePanic bool

	released atomic.Int32
}

func (c *stubConn) Begin(context.Context) (postgres.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}

func (c *stubConn) Release() error {
	c.released.Add(1)
	if c.releasePanic {
		panic("release exploded")
	}
	return c.releaseErr
}

type stubTx struct {
	mu          sync.Mutex
	queries     []string
	queryPanics bool
	rows        *stubRows
	execN       int64
	execErr     error
	commitErr   error
	rollbackErr error
	commits     int
	rollbacks   int
}

func (t *stubTx) record(q string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queries = append(t.queries, q)
}

func (t *stubTx) Query(_ context.Context, q string, _ ...any) (postgres.Rows, error) {
	t.record(q)
	if t.queryPanics {
		panic("driver exploded")
	}
	if t.rows == nil {
		return &stubRows{}, nil
	}
	return t.rows, nil
}

func (t *stubTx) Exec(_ context.Context, q string, _ ...any) (int64, error) {
	t.record(q)
	return t.execN, t.execErr
}

func (t *stubTx) ExecBatch(_ context.Context, q string, sets [][]any) (int64, error) {
	t.record(q)
	return t.execN * int64(len(sets)), t.execErr
}

func (t *stubTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return t.commitErr
}

func (t *stubTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return t.rollbackErr
}

type stubRows struct {
	cols     []string
	data     [][]any
	pos      int
	closeErr error
	closed   int
}

func (r *stubRows) Columns() []string { return r.cols }

func (r *stubRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Values() ([]any, error) { return r.data[r.pos-1], nil }
func (r *stubRows) Err() error             { return nil }

func (r *stubRows) Close() error {
	r.closed++
	return r.closeErr
}

// countingPool is a ConnPool that records its use.
type countingPool struct {
	conn     postgres.Conn
	err      error
	acquires atomic.Int32
	releases atomic.Int32
}

func (p *countingPool) Acquire(context.Context) (postgres.Conn, error) {
	p.acquires.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.conn, nil
}

func (p *countingPool) Release(postgres.Conn) { p.releases.Add(1) }

type metricsRecorder struct {
	mu              sync.Mutex
	outcomes        []string
	acquires        int
	rollbacksFailed int
}

func (m *metricsRecorder) ObserveExecution(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+"/"+outcome)
}

func (m *metricsRecorder) ObserveAcquire(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquires++
}

func (m *metricsRecorder) RollbackFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacksFailed++
}

type mapCache struct {
	mu            sync.Mutex
	gen           int
	data          map[string][]postgres.Row
	stores        int
	invalidations int
}

func (c *mapCache) Lookup(_ context.Context, sql string, args []any) (string, []postgres.Row, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("%d|%s|%v", c.gen, sql, args)
	rows, ok := c.data[key]
	return key, rows, ok, nil
}

func (c *mapCache) Store(_ context.Context, key string, rows []postgres.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]postgres.Row{}
	}
	c.stores++
	c.data[key] = rows
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidations++
	return nil
}
