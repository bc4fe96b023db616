package postgres

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/vortex-fintech/pgexec/data/sqlbind"
	"github.com/vortex-fintech/pgexec/foundation/logger"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Result holds either fetched rows or an affected-row count, never both.
type Result struct {
	Rows         []Row
	RowsAffected int64
	Fetched      bool
}

// ConnPool is what the Executor needs from a pool. *Pool implements it.
type ConnPool interface {
	Acquire(ctx context.Context) (Conn, error)
	Release(c Conn)
}

// Execution outcomes reported to Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // input error, no connection used
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
)

// Execution operations reported to Metrics.
const (
	OpQuery = "query"
	OpExec  = "exec"
	OpBatch = "batch"
)

type Metrics interface {
	ObserveExecution(op, outcome string, d time.Duration)
	ObserveAcquire(d time.Duration)
	RollbackFailed()
}

type noopMetrics struct{}

func (noopMetrics) ObserveExecution(string, string, time.Duration) {}
func (noopMetrics) ObserveAcquire(time.Duration)                   {}
func (noopMetrics) RollbackFailed()                                {}

// RowCache is an optional read-through cache for fetch executions of a
// single parameter set. Only SELECT statements are cached.
//
// Lookup returns the key for the current cache generation; Store writes
// under that key. Invalidate starts a new generation and is called after
// every committed non-fetch execution, so rows read before a write are
// never served after it. Writes that bypass the executor are only bounded
// by the entry lifetime.
type RowCache interface {
	Lookup(ctx context.Context, sql string, args []any) (key string, rows []Row, hit bool, err error)
	Store(ctx context.Context, key string, rows []Row) error
	Invalidate(ctx context.Context) error
}

// Executor runs queries on connections leased from a ConnPool.
// It is safe for concurrent use.
type Executor struct {
	pool    ConnPool
	log     logger.LoggerInterface
	style   sqlbind.Style
	metrics Metrics
	cache   RowCache
}

type ExecutorOption func(*Executor)

func WithExecutorLogger(l logger.LoggerInterface) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithStyle selects the positional marker; StyleFormat (%s) is the default.
func WithStyle(s sqlbind.Style) ExecutorOption {
	return func(e *Executor) { e.style = s }
}

func WithMetrics(m Metrics) ExecutorOption {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithRowCache(c RowCache) ExecutorOption {
	return func(e *Executor) { e.cache = c }
}

func NewExecutor(pool ConnPool, opts ...ExecutorOption) *Executor {
	e := &Executor{
		pool:    pool,
		log:     logger.Nop(),
		metrics: noopMetrics{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Query is Execute with fetch set.
func (e *Executor) Query(ctx context.Context, query string, params any) ([]Row, error) {
	res, err := e.Execute(ctx, query, params, true)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Exec is Execute without fetch.
func (e *Executor) Exec(ctx context.Context, query string, params any) (int64, error) {
	res, err := e.Execute(ctx, query, params, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Execute runs query with params, which may be nil, a scalar, a slice,
// a string-keyed map, a slice of slices or maps (a batch), or a
// sqlbind.Params.
//
// With fetch, all rows are returned and the transaction is rolled back.
// Without it, the affected-row count is returned after commit; a batch
// runs as one grouped operation and reports the summed count. Parameter
// errors and ErrFetchConflict are returned before a connection is
// acquired. Driver failures are rolled back and returned as
// *ExecutionError.
func (e *Executor) Execute(ctx context.Context, query string, params any, fetch bool) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	log := e.log.With(logger.FieldsFromContext(ctx, "exec_id", uuid.NewString())...)

	op := OpExec
	if fetch {
		op = OpQuery
	}

	p, err := sqlbind.Normalize(params)
	if err != nil {
		return e.reject(log, op, start, err)
	}
	if p.Kind().IsBatch() && !fetch {
		op = OpBatch
	}
	if fetch && p.Kind().IsBatch() {
		return e.reject(log, op, start, ErrFetchConflict)
	}

	rw, err := sqlbind.Rewrite(query, p, e.style)
	if err != nil {
		return e.reject(log, op, start, err)
	}
	st, err := sqlbind.Bind(rw)
	if err != nil {
		return e.reject(log, op, start, err)
	}
	if rw.Expansions > 0 {
		log.Debugw("query expanded", "expansions", rw.Expansions, "sql", st.SQL)
	}
	if st.Batch && len(st.Args) == 0 {
		log.Debugw("empty batch, nothing to execute")
		e.metrics.ObserveExecution(op, OutcomeOK, time.Since(start))
		return Result{}, nil
	}

	var cacheKey string
	if fetch && e.cache != nil && cacheable(st.SQL) {
		key, rows, ok, cerr := e.cache.Lookup(ctx, st.SQL, st.Args[0])
		switch {
		case cerr != nil:
			log.Warnw("row cache read failed", "error", cerr)
		case ok:
			e.metrics.ObserveExecution(op, OutcomeCacheHit, time.Since(start))
			return Result{Rows: rows, Fetched: true}, nil
		default:
			cacheKey = key
		}
	}

	acquireStart := time.Now()
	conn, err := e.pool.Acquire(ctx)
	e.metrics.ObserveAcquire(time.Since(acquireStart))
	if err != nil {
		log.Errorw("acquire connection failed", "op", op, "error", err)
		e.metrics.ObserveExecution(op, OutcomeError, time.Since(start))
		return Result{}, err
	}
	defer e.pool.Release(conn)

	res, err := e.run(ctx, conn, st, fetch, log)
	d := time.Since(start)
	if err != nil {
		var ee *ExecutionError
		if errors.As(err, &ee) && ee.Query == "" {
			ee.Query = st.SQL
		}
		log.Errorw("query failed", "op", op, "sql", st.SQL, "duration", d, "error", err)
		e.metrics.ObserveExecution(op, OutcomeError, d)
		return Result{}, err
	}

	if fetch {
		log.Debugw("query executed", "op", op, "rows", len(res.Rows), "duration", d)
		if cacheKey != "" {
			if cerr := e.cache.Store(ctx, cacheKey, res.Rows); cerr != nil {
				log.Warnw("row cache write failed", "error", cerr)
			}
		}
	} else {
		log.Debugw("statement committed", "op", op, "rows_affected", res.RowsAffected, "sets", len(st.Args), "duration", d)
		if e.cache != nil {
			if cerr := e.cache.Invalidate(context.WithoutCancel(ctx)); cerr != nil {
				log.Errorw("row cache invalidation failed", "error", cerr)
			}
		}
	}
	e.metrics.ObserveExecution(op, OutcomeOK, d)
	return res, nil
}

func (e *Executor) reject(log logger.LoggerInterface, op string, start time.Time, err error) (Result, error) {
	log.Warnw("query rejected", "op", op, "error", err)
	e.metrics.ObserveExecution(op, OutcomeRejected, time.Since(start))
	return Result{}, err
}

func (e *Executor) run(ctx context.Context, conn Conn, st sqlbind.Statement, fetch bool, log logger.LoggerInterface) (Result, error) {
	var res Result
	err := e.inTx(ctx, conn, !fetch, log, func(tx Tx) error {
		switch {
		case fetch:
			rows, err := tx.Query(ctx, st.SQL, st.Args[0]...)
			if err != nil {
				return execErr("query", st.SQL, err)
			}
			defer func() {
				if cerr := rows.Close(); cerr != nil {
					log.Warnw("closing cursor failed", "error", cerr)
				}
			}()
			out, err := collect(rows)
			if err != nil {
				return execErr("scan", st.SQL, err)
			}
			res = Result{Rows: out, Fetched: true}

		case st.Batch:
			n, err := tx.ExecBatch(ctx, st.SQL, st.Args)
			if err != nil {
				return execErr("batch", st.SQL, err)
			}
			res.RowsAffected = n

		default:
			n, err := tx.Exec(ctx, st.SQL, st.Args[0]...)
			if err != nil {
				return execErr("exec", st.SQL, err)
			}
			res.RowsAffected = n
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func collect(rows Rows) ([]Row, error) {
	cols := rows.Columns()
	out := []Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if i < len(vals) {
				r[c] = vals[i]
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// cacheable reports whether sql is a plain SELECT.
func cacheable(sql string) bool {
	sql = strings.TrimLeft(sql, " \t\r\n(")
	if len(sql) < 6 || !strings.EqualFold(sql[:6], "select") {
		return false
	}
	if len(sql) == 6 {
		return true
	}
	c := rune(sql[6])
	return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_'
}
