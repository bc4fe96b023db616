package postgres

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPoolNotReady is returned by Acquire before Init or after CloseAll.
	ErrPoolNotReady = errors.New("postgres: connection pool is not initialized")
	// ErrFetchConflict rejects fetch=true with a batched parameter set.
	ErrFetchConflict = errors.New("postgres: cannot fetch rows from a batched execution")
	// ErrInvalidConfig is matched by every *ConfigurationError.
	ErrInvalidConfig = errors.New("postgres: invalid configuration")
	// ErrForeignConn is logged when Release is given a connection the pool
	// did not hand out.
	ErrForeignConn = errors.New("postgres: connection does not belong to this pool")
)

// ConfigurationError lists everything wrong with a PoolConfig.
type ConfigurationError struct {
	Missing []string // required variables that are unset, in declaration order
	Invalid []string // "FIELD: code" for values that are set but unusable
	Err     error
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required DB environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(e.Invalid, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return ErrInvalidConfig.Error()
	}
	return ErrInvalidConfig.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

// PoolInitializationError is returned when every construction attempt
// failed. Nothing is installed in the pool.
type PoolInitializationError struct {
	Attempts int
	Err      error
}

func (e *PoolInitializationError) Error() string {
	return fmt.Sprintf("postgres: pool initialization failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PoolInitializationError) Unwrap() error { return e.Err }

// ExecutionError wraps a driver failure during Execute. The transaction
// has been rolled back by the time it is returned.
type ExecutionError struct {
	Op    string // begin, query, exec, batch, scan, commit
	Query string // rewritten SQL sent to the driver
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("postgres: %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func execErr(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Op: op, Query: query, Err: err}
}
