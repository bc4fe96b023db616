package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// SQLOpener opens a database/sql backend, lib/pq by default.
//
// When DB is set it is used as is and nothing is dialed; this is how
// tests plug in go-sqlmock.
type SQLOpener struct {
	DriverName string // default "postgres"
	DB         *sql.DB
	// Connect replaces sql.Open.
	Connect func(driverName, dsn string) (*sql.DB, error)
}

func (o SQLOpener) Open(ctx context.Context, cfg PoolConfig) (Backend, error) {
	db := o.DB
	if db == nil {
		connect := o.Connect
		if connect == nil {
			connect = sql.Open
		}
		name := o.DriverName
		if name == "" {
			name = "postgres"
		}
		var err error
		db, err = connect(name, cfg.ConnString())
		if err != nil {
			return nil, err
		}
	}

	if cfg.MaxSize > 0 {
		db.SetMaxOpenConns(cfg.MaxSize)
	}
	db.SetMaxIdleConns(cfg.MinSize)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if o.DB == nil {
			_ = db.Close()
		}
		return nil, err
	}
	return &sqlBackend{db: db}, nil
}

type sqlBackend struct {
	db *sql.DB
}

func (b *sqlBackend) Acquire(ctx context.Context) (BackendConn, error) {
	c, err := b.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{c: c}, nil
}

func (b *sqlBackend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *sqlBackend) Stats() Stats {
	s := b.db.Stats()
	return Stats{
		Total: s.OpenConnections,
		Idle:  s.Idle,
		InUse: s.InUse,
		Max:   s.MaxOpenConnections,
	}
}

func (b *sqlBackend) Close() error { return b.db.Close() }

type sqlConn struct {
	c *sql.Conn
}

func (c *sqlConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.c.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{tx: tx}, nil
}

// Release hands the session back to the sql.DB pool.
func (c *sqlConn) Release() error {
	err := c.c.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &sqlRows{rows: rows, cols: cols}, nil
}

func (t sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecBatch prepares query once and executes it per set.
func (t sqlTx) ExecBatch(ctx context.Context, query string, sets [][]any) (total int64, err error) {
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := stmt.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	for i, args := range sets {
		res, e := stmt.ExecContext(ctx, args...)
		if e != nil {
			return total, fmt.Errorf("set %d: %w", i, e)
		}
		n, e := res.RowsAffected()
		if e != nil {
			return total, fmt.Errorf("set %d: %w", i, e)
		}
		total += n
	}
	return total, nil
}

func (t sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }

type sqlRows struct {
	rows *sql.Rows
	cols []string
}

func (r *sqlRows) Columns() []string { return r.cols }
func (r *sqlRows) Next() bool        { return r.rows.Next() }
func (r *sqlRows) Err() error        { return r.rows.Err() }
func (r *sqlRows) Close() error      { return r.rows.Close() }

func (r *sqlRows) Values() ([]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
