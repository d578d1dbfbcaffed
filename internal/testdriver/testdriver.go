// Package testdriver provides a scriptable database/sql driver for
// exercising pool and executor behavior without a live database. Each New
// call registers a fresh driver name backed by a Backend that scripts
// per-statement results and failures, records bound arguments, and counts
// resource lifecycle events.
package testdriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var seq int64

// Set is one scripted result set: column names plus rows in source order.
type Set struct {
	Columns []string
	Rows    [][]driver.Value
}

// Script holds the behavior of one SQL text.
type Script struct {
	PrepareErr error
	ExecErr    error
	QueryErr   error

	// Sets are returned, in order, by query-style executions.
	Sets []Set

	// Outputs are assigned to sql.Out holders in positional order.
	Outputs []any

	bound [][]any
}

// Backend is the shared state behind one registered driver name.
type Backend struct {
	mu      sync.Mutex
	scripts map[string]*Script

	// ConnectErr makes every new physical connection fail.
	ConnectErr error

	// CommitErr and RollbackErr inject transaction teardown failures.
	CommitErr   error
	RollbackErr error

	connects   int
	connCloses int
	prepares   int
	stmtCloses int
	rowsCloses int
	commits    int
	rollbacks  int
}

// New registers a fresh scriptable driver and returns its backend together
// with the driver name to pass to sql.Open.
func New() (*Backend, string) {
	b := &Backend{scripts: make(map[string]*Script)}
	name := fmt.Sprintf("testdriver-%d", atomic.AddInt64(&seq, 1))
	sql.Register(name, &drv{backend: b})
	return b, name
}

// Script returns (creating if needed) the script for the given SQL text.
func (b *Backend) Script(query string) *Script {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.scripts[query]
	if !ok {
		s = &Script{}
		b.scripts[query] = s
	}
	return s
}

// BoundArgs returns the recorded positional arguments of every execution of
// the given SQL text.
func (b *Backend) BoundArgs(query string) [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.scripts[query]
	if !ok {
		return nil
	}
	out := make([][]any, len(s.bound))
	copy(out, s.bound)
	return out
}

func (b *Backend) Connects() int   { b.mu.Lock(); defer b.mu.Unlock(); return b.connects }
func (b *Backend) ConnCloses() int { b.mu.Lock(); defer b.mu.Unlock(); return b.connCloses }
func (b *Backend) Prepares() int   { b.mu.Lock(); defer b.mu.Unlock(); return b.prepares }
func (b *Backend) StmtCloses() int { b.mu.Lock(); defer b.mu.Unlock(); return b.stmtCloses }
func (b *Backend) RowsCloses() int { b.mu.Lock(); defer b.mu.Unlock(); return b.rowsCloses }
func (b *Backend) Commits() int    { b.mu.Lock(); defer b.mu.Unlock(); return b.commits }
func (b *Backend) Rollbacks() int  { b.mu.Lock(); defer b.mu.Unlock(); return b.rollbacks }

type drv struct {
	backend *Backend
}

func (d *drv) Open(string) (driver.Conn, error) {
	b := d.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ConnectErr != nil {
		return nil, b.ConnectErr
	}
	b.connects++
	return &conn{backend: b}, nil
}

type conn struct {
	backend *Backend
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	s := c.backend.Script(query)
	if s.PrepareErr != nil {
		return nil, s.PrepareErr
	}
	c.backend.mu.Lock()
	c.backend.prepares++
	c.backend.mu.Unlock()
	return &stmt{backend: c.backend, script: s}, nil
}

func (c *conn) Close() error {
	c.backend.mu.Lock()
	c.backend.connCloses++
	c.backend.mu.Unlock()
	return nil
}

func (c *conn) Begin() (driver.Tx, error) {
	return &tx{backend: c.backend}, nil
}

type tx struct {
	backend *Backend
}

func (t *tx) Commit() error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	if t.backend.CommitErr != nil {
		return t.backend.CommitErr
	}
	t.backend.commits++
	return nil
}

func (t *tx) Rollback() error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	t.backend.rollbacks++
	return t.backend.RollbackErr
}

type stmt struct {
	backend *Backend
	script  *Script
}

func (s *stmt) Close() error {
	s.backend.mu.Lock()
	s.backend.stmtCloses++
	s.backend.mu.Unlock()
	return nil
}

func (s *stmt) NumInput() int {
	// Skip the placeholder count check; scripts decide what is valid.
	return -1
}

// CheckNamedValue accepts sql.Out holders as-is and defers everything else
// to the default converter.
func (s *stmt) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(sql.Out); ok {
		return nil
	}
	return driver.ErrSkip
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.record(args)
	if s.script.ExecErr != nil {
		return nil, s.script.ExecErr
	}
	s.assignOutputs(args)
	return driver.RowsAffected(1), nil
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.record(args)
	if s.script.QueryErr != nil {
		return nil, s.script.QueryErr
	}
	s.assignOutputs(args)
	return &rows{backend: s.backend, sets: s.script.Sets}, nil
}

// Exec and Query satisfy the legacy driver.Stmt interface; the context
// variants above are the ones database/sql actually uses.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *stmt) record(args []driver.NamedValue) {
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	s.backend.mu.Lock()
	s.script.bound = append(s.script.bound, vals)
	s.backend.mu.Unlock()
}

// assignOutputs writes the scripted output values into the sql.Out holders,
// in positional order.
func (s *stmt) assignOutputs(args []driver.NamedValue) {
	i := 0
	for _, a := range args {
		out, ok := a.Value.(sql.Out)
		if !ok {
			continue
		}
		if dest, ok := out.Dest.(*any); ok && i < len(s.script.Outputs) {
			*dest = s.script.Outputs[i]
		}
		i++
	}
}

func namedValues(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, a := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return out
}

type rows struct {
	backend *Backend
	sets    []Set
	cur     int
	row     int
}

func (r *rows) Columns() []string {
	if r.cur < len(r.sets) {
		return r.sets[r.cur].Columns
	}
	return nil
}

func (r *rows) Close() error {
	r.backend.mu.Lock()
	r.backend.rowsCloses++
	r.backend.mu.Unlock()
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if r.cur >= len(r.sets) {
		return io.EOF
	}
	set := r.sets[r.cur]
	if r.row >= len(set.Rows) {
		return io.EOF
	}
	copy(dest, set.Rows[r.row])
	r.row++
	return nil
}

func (r *rows) HasNextResultSet() bool {
	return r.cur+1 < len(r.sets)
}

func (r *rows) NextResultSet() error {
	if !r.HasNextResultSet() {
		return io.EOF
	}
	r.cur++
	r.row = 0
	return nil
}
