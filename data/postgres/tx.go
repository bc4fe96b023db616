package postgres

import (
	"context"
	"time"

	"github.com/vortex-fintech/pgexec/foundation/logger"
)

const rollbackTimeout = 5 * time.Second

// inTx runs fn in a transaction on conn (panic-safe). The transaction is
// committed only when fn succeeds and commit is set; every other exit,
// panics included, rolls it back.
func (e *Executor) inTx(ctx context.Context, conn Conn, commit bool, log logger.LoggerInterface, fn func(Tx) error) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return execErr("begin", "", err)
	}

	defer func() {
		if p := recover(); p != nil {
			e.rollback(ctx, tx, log)
			panic(p)
		}
		if err != nil || !commit {
			e.rollback(ctx, tx, log)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = execErr("commit", "", cerr)
		}
	}()

	return fn(tx)
}

// rollback is best effort. It outlives a cancelled ctx so the session is
// not left inside an aborted transaction.
func (e *Executor) rollback(ctx context.Context, tx Tx, log logger.LoggerInterface) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := tx.Rollback(rctx); err != nil {
		e.metrics.RollbackFailed()
		log.Warnw("rollback failed", "error", err)
	}
}
