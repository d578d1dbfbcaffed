package dbq

import "errors"

// Standard errors for pool and statement operations.
// Use errors.Is() to check these error types in calling code.
var (
	// ErrConnection indicates a failure constructing, filling, or leasing
	// from the connection pool.
	ErrConnection = errors.New("connection pool error")

	// ErrClose indicates a failure tearing down the connection pool.
	ErrClose = errors.New("connection pool close error")

	// ErrExecution indicates a prepare, bind, or execute failure on the
	// query, update, or stored procedure paths.
	ErrExecution = errors.New("statement execution error")

	// ErrTransaction indicates a failure on the transactional update path.
	// The original execution failure stays in the chain; a rollback failure
	// is logged and never replaces it.
	ErrTransaction = errors.New("transaction error")
)
