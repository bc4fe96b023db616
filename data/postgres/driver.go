package postgres

import "context"

// Opener builds a Backend from a PoolConfig. Errors marked with
// retry.Permanent are not retried by Pool.Init.
type Opener interface {
	Open(ctx context.Context, cfg PoolConfig) (Backend, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, cfg PoolConfig) (Backend, error)

func (f OpenerFunc) Open(ctx context.Context, cfg PoolConfig) (Backend, error) {
	return f(ctx, cfg)
}

// Backend is a live connection pool of some driver.
type Backend interface {
	Acquire(ctx context.Context) (BackendConn, error)
	Ping(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Conn is one leased connection, exclusively owned until released.
type Conn interface {
	Begin(ctx context.Context) (Tx, error)
}

// BackendConn is a Conn as handed out by a Backend. Release returns it to
// the backend without closing the underlying session.
type BackendConn interface {
	Conn
	Release() error
}

// Tx is an open transaction on a Conn.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// ExecBatch runs sql once per argument set as one grouped operation
	// and returns the summed affected-row count.
	ExecBatch(ctx context.Context, sql string, sets [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is a forward-only result cursor.
type Rows interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total int // open connections
	Idle  int
	InUse int
	Max   int
}
