package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vortex-fintech/pgexec/foundation/retry"
)

// Test hooks (replaceable in unit tests).
var (
	newPool  = pgxpool.NewWithConfig
	pingPool = func(ctx context.Context, p *pgxpool.Pool) error { return p.Ping(ctx) }
)

const pingTimeout = 5 * time.Second

// PgxOpener opens a pgxpool backend.
type PgxOpener struct{}

func (PgxOpener) Open(ctx context.Context, cfg PoolConfig) (Backend, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		// A malformed DSN will not get better on retry.
		return nil, retry.Permanent(fmt.Errorf("postgres: parse dsn: %w", err))
	}

	if cfg.MaxSize > 0 {
		pcfg.MaxConns = int32(cfg.MaxSize)
	}
	pcfg.MinConns = int32(cfg.MinSize)
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	// pg_stat_activity visibility and a fixed session timezone.
	if pcfg.ConnConfig != nil {
		if pcfg.ConnConfig.Config.RuntimeParams == nil {
			pcfg.ConnConfig.Config.RuntimeParams = map[string]string{}
		}
		if _, ok := pcfg.ConnConfig.Config.RuntimeParams["application_name"]; !ok {
			pcfg.ConnConfig.Config.RuntimeParams["application_name"] = cfg.applicationName()
		}
		if _, ok := pcfg.ConnConfig.Config.RuntimeParams["TimeZone"]; !ok {
			pcfg.ConnConfig.Config.RuntimeParams["TimeZone"] = "UTC"
		}
	}

	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pingPool(pingCtx, pool); err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	return &pgxBackend{pool: pool}, nil
}

type pgxBackend struct {
	pool *pgxpool.Pool
}

func (b *pgxBackend) Acquire(ctx context.Context) (BackendConn, error) {
	c, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{c: c}, nil
}

func (b *pgxBackend) Ping(ctx context.Context) error { return b.pool.Ping(ctx) }

func (b *pgxBackend) Stats() Stats {
	if b.pool == nil {
		return Stats{}
	}
	s := b.pool.Stat()
	return Stats{
		Total: int(s.TotalConns()),
		Idle:  int(s.IdleConns()),
		InUse: int(s.AcquiredConns()),
		Max:   int(s.MaxConns()),
	}
}

func (b *pgxBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}

type pgxConn struct {
	c *pgxpool.Conn
}

func (c *pgxConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.c.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return pgxTx{tx: tx}, nil
}

func (c *pgxConn) Release() error {
	c.c.Release()
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (t pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExecBatch queues every set on one pgx.Batch so the whole group costs a
// single round trip.
func (t pgxTx) ExecBatch(ctx context.Context, sql string, sets [][]any) (total int64, err error) {
	b := &pgx.Batch{}
	for _, args := range sets {
		b.Queue(sql, args...)
	}
	br := t.tx.SendBatch(ctx, b)
	defer func() {
		if cerr := br.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	for i := range sets {
		tag, e := br.Exec()
		if e != nil {
			return total, fmt.Errorf("set %d: %w", i, e)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (t pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type pgxRows struct {
	rows pgx.Rows
	cols []string
}

func (r *pgxRows) Columns() []string {
	if r.cols == nil {
		fds := r.rows.FieldDescriptions()
		r.cols = make([]string, len(fds))
		for i, fd := range fds {
			r.cols[i] = fd.Name
		}
	}
	return r.cols
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

// Close never fails; stream errors are reported by Err.
func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}
