package dbq

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dbq/shared/logger"
)

var tracer = otel.Tracer("dbq")

// startOp opens the span for one execution and assigns it an operation id
// used to correlate log lines. The returned func records the final outcome
// and must be deferred.
func startOp(ctx context.Context, kind string) (context.Context, string, func(error)) {
	opID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "dbq."+kind, trace.WithAttributes(
		attribute.String("db.operation", kind),
		attribute.String("dbq.op_id", opID),
	))
	return ctx, opID, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// release closes a statement or connection once the outcome of the
// operation is already decided. A close failure is logged and never
// replaces that outcome.
func (p *Pool) release(resource, opID string, c io.Closer) {
	if err := c.Close(); err != nil {
		p.log.Warn("cleanup failed after execution",
			logger.String("resource", resource),
			logger.String("op_id", opID),
			logger.Err(err))
	}
}

// Query prepares and executes a read statement, binding the args
// positionally after null coercion, and returns the normalized result set.
// A plain SQL string is simply a query with no args.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (rs ResultSet, err error) {
	ctx, opID, done := startOp(ctx, "query")
	defer func() { done(err) }()

	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release("connection", opID, conn)

	stmt, err := conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare statement: %w", ErrExecution, err)
	}
	defer p.release("statement", opID, stmt)

	rows, err := stmt.QueryxContext(ctx, coerceArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("%w: execute query: %w", ErrExecution, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close rows: %w", ErrExecution, cerr)
		}
	}()

	rs, err = collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: read result set: %w", ErrExecution, err)
	}
	p.log.Debug("executed query",
		logger.String("op_id", opID),
		logger.Int("rows", len(rs)))
	return rs, nil
}

// Update prepares and executes a write statement under auto-commit. Success
// is a nil error; the row count is not surfaced.
func (p *Pool) Update(ctx context.Context, query string, args ...any) (err error) {
	ctx, opID, done := startOp(ctx, "update")
	defer func() { done(err) }()

	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release("connection", opID, conn)

	stmt, err := conn.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare statement: %w", ErrExecution, err)
	}
	defer p.release("statement", opID, stmt)

	if _, err = stmt.ExecContext(ctx, coerceArgs(args)...); err != nil {
		return fmt.Errorf("%w: execute update: %w", ErrExecution, err)
	}
	p.log.Debug("executed update", logger.String("op_id", opID))
	return nil
}

// UpdateTx runs a write statement with auto-commit disabled: the statement
// executes inside an explicit transaction, committed on success. On any
// failure a rollback is attempted exactly once; a rollback failure is logged
// and never replaces the original error.
func (p *Pool) UpdateTx(ctx context.Context, query string, args ...any) (err error) {
	ctx, opID, done := startOp(ctx, "update_tx")
	defer func() { done(err) }()

	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release("connection", opID, conn)

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrTransaction, err)
	}

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		p.rollback(tx, opID)
		return fmt.Errorf("%w: prepare statement: %w", ErrTransaction, err)
	}
	defer p.release("statement", opID, stmt)

	if _, err = stmt.ExecContext(ctx, coerceArgs(args)...); err != nil {
		p.rollback(tx, opID)
		return fmt.Errorf("%w: execute update: %w", ErrTransaction, err)
	}

	if err = tx.Commit(); err != nil {
		p.rollback(tx, opID)
		return fmt.Errorf("%w: commit: %w", ErrTransaction, err)
	}
	p.log.Debug("committed update", logger.String("op_id", opID))
	return nil
}

func (p *Pool) rollback(tx *sqlx.Tx, opID string) {
	if err := tx.Rollback(); err != nil {
		p.log.Warn("rollback failed after transaction error",
			logger.String("op_id", opID),
			logger.Err(err))
	}
}

// procOut pairs an output parameter's field name with the holder the driver
// writes into.
type procOut struct {
	field string
	dest  *any
}

// Call prepares and executes a stored procedure. Parameters bind
// positionally in list order: InParameter values are null-coerced inputs,
// OutParameter entries register output holders whose values are read back
// trimmed and keyed by field name. Cursors produced by the call are drained
// in order into the ResultSetsKey entry, present only when there is at least
// one.
func (p *Pool) Call(ctx context.Context, query string, params ...Parameter) (res ProcedureResult, err error) {
	ctx, opID, done := startOp(ctx, "call")
	defer func() { done(err) }()

	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release("connection", opID, conn)

	stmt, err := conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare statement: %w", ErrExecution, err)
	}
	defer p.release("statement", opID, stmt)

	args := make([]any, 0, len(params))
	outs := make([]procOut, 0, len(params))
	for _, param := range params {
		switch v := param.(type) {
		case OutParameter:
			dest := new(any)
			outs = append(outs, procOut{field: v.FieldName, dest: dest})
			args = append(args, sql.Out{Dest: dest})
		case InParameter:
			args = append(args, ConvertNulls(v.Value))
		default:
			return nil, fmt.Errorf("%w: unsupported parameter type %T", ErrExecution, param)
		}
	}

	rows, err := stmt.QueryxContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: execute procedure: %w", ErrExecution, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close rows: %w", ErrExecution, cerr)
		}
	}()

	res = make(ProcedureResult, len(outs)+1)
	for _, o := range outs {
		res[o.field] = TrimValue(stringValue(*o.dest))
	}

	var sets []ResultSet
	for more := true; more; more = rows.NextResultSet() {
		cols, cerr := rows.Columns()
		if cerr != nil {
			return nil, fmt.Errorf("%w: read cursor metadata: %w", ErrExecution, cerr)
		}
		if len(cols) == 0 {
			// The call produced no cursor at this position.
			continue
		}
		set, cerr := collectRows(rows)
		if cerr != nil {
			return nil, fmt.Errorf("%w: read cursor: %w", ErrExecution, cerr)
		}
		sets = append(sets, set)
	}
	if len(sets) > 0 {
		res[ResultSetsKey] = sets
	}
	p.log.Debug("executed stored procedure",
		logger.String("op_id", opID),
		logger.Int("outputs", len(outs)),
		logger.Int("cursors", len(sets)))
	return res, nil
}
