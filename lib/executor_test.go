package dbq

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"

	"dbq/internal/testdriver"
)

type driverValue = driver.Value

func TestQueryNormalizesRows(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT ID, NAME FROM T").Sets = []testdriver.Set{{
		Columns: []string{"ID", "NAME"},
		Rows: [][]driverValue{
			{int64(1), "Alice"},
			{int64(2), "Bob "},
		},
	}}

	rows, err := p.Query(context.Background(), "SELECT ID, NAME FROM T")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	want := ResultSet{
		{"ID": "1", "NAME": "Alice", IndexKey: 0},
		{"ID": "2", "NAME": "Bob", IndexKey: 1},
	}
	assertResultSet(t, rows, want)
}

func TestQueryEmptyResultSet(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT ID FROM T").Sets = []testdriver.Set{{Columns: []string{"ID"}}}

	rows, err := p.Query(context.Background(), "SELECT ID FROM T")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rows == nil {
		t.Fatal("expected non-nil empty result set")
	}
	if len(rows) != 0 {
		t.Errorf("expected 0 rows, got %d", len(rows))
	}
}

func TestQueryNullColumn(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT NAME FROM T").Sets = []testdriver.Set{{
		Columns: []string{"NAME"},
		Rows:    [][]driverValue{{nil}},
	}}

	rows, err := p.Query(context.Background(), "SELECT NAME FROM T")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if v, ok := rows[0]["NAME"]; !ok || v != nil {
		t.Errorf("expected NULL column to be present and nil, got %v (present=%v)", v, ok)
	}
}

func TestQueryReleasesResourcesOnSuccess(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT 1").Sets = []testdriver.Set{{Columns: []string{"N"}}}

	if _, err := p.Query(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Query: %v", err)
	}

	if got := backend.StmtCloses(); got != 1 {
		t.Errorf("expected statement closed exactly once, got %d", got)
	}
	if got := backend.RowsCloses(); got != 1 {
		t.Errorf("expected cursor closed exactly once, got %d", got)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestQueryReleasesResourcesOnFailure(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT 1").QueryErr = errors.New("cursor error")

	_, err := p.Query(context.Background(), "SELECT 1")
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}

	if got := backend.StmtCloses(); got != 1 {
		t.Errorf("expected statement closed exactly once, got %d", got)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestQueryPrepareFailure(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT 1").PrepareErr = errors.New("syntax error")

	_, err := p.Query(context.Background(), "SELECT 1")
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if got := backend.StmtCloses(); got != 0 {
		t.Errorf("no statement was created, but %d were closed", got)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestUpdateBindsPositionally(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "UPDATE T SET NAME=? WHERE ID=?"

	if err := p.Update(context.Background(), stmt, "Carl", 1); err != nil {
		t.Fatalf("Update: %v", err)
	}

	bound := backend.BoundArgs(stmt)
	if len(bound) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(bound))
	}
	if bound[0][0] != "Carl" {
		t.Errorf("expected 'Carl' at position 1, got %v", bound[0][0])
	}
	if bound[0][1] != int64(1) {
		t.Errorf("expected 1 at position 2, got %v", bound[0][1])
	}
}

func TestUpdateCoercesEmptyStringToNull(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "UPDATE T SET NAME=? WHERE ID=?"

	if err := p.Update(context.Background(), stmt, "", 2); err != nil {
		t.Fatalf("Update: %v", err)
	}

	bound := backend.BoundArgs(stmt)
	if bound[0][0] != nil {
		t.Errorf("expected empty string bound as NULL, got %v", bound[0][0])
	}
}

func TestUpdateFailureReleasesResources(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("UPDATE T SET A=?").ExecErr = errors.New("constraint violation")

	err := p.Update(context.Background(), "UPDATE T SET A=?", "x")
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if got := backend.StmtCloses(); got != 1 {
		t.Errorf("expected statement closed exactly once, got %d", got)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestUpdateTxCommitsOnSuccess(t *testing.T) {
	p, backend := newTestPool(t)

	if err := p.UpdateTx(context.Background(), "UPDATE T SET A=?", "x"); err != nil {
		t.Fatalf("UpdateTx: %v", err)
	}
	if got := backend.Commits(); got != 1 {
		t.Errorf("expected 1 commit, got %d", got)
	}
	if got := backend.Rollbacks(); got != 0 {
		t.Errorf("expected no rollback, got %d", got)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestUpdateTxRollsBackOnFailure(t *testing.T) {
	p, backend := newTestPool(t)
	execErr := errors.New("deadlock")
	backend.Script("UPDATE T SET A=?").ExecErr = execErr

	err := p.UpdateTx(context.Background(), "UPDATE T SET A=?", "x")
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}
	if !errors.Is(err, execErr) {
		t.Errorf("expected the original execution failure in the chain, got %v", err)
	}
	if got := backend.Commits(); got != 0 {
		t.Errorf("commit must never run after a failure, got %d", got)
	}
	if got := backend.Rollbacks(); got != 1 {
		t.Errorf("expected exactly one rollback, got %d", got)
	}
}

func TestUpdateTxRollbackFailureDoesNotMask(t *testing.T) {
	p, backend := newTestPool(t)
	execErr := errors.New("deadlock")
	rollbackErr := errors.New("connection torn down")
	backend.Script("UPDATE T SET A=?").ExecErr = execErr
	backend.RollbackErr = rollbackErr

	err := p.UpdateTx(context.Background(), "UPDATE T SET A=?", "x")
	if !errors.Is(err, execErr) {
		t.Errorf("expected the original execution failure, got %v", err)
	}
	if errors.Is(err, rollbackErr) {
		t.Errorf("rollback failure must not replace the original error: %v", err)
	}
	if got := backend.Rollbacks(); got != 1 {
		t.Errorf("expected exactly one rollback attempt, got %d", got)
	}
}

func TestUpdateTxCommitFailure(t *testing.T) {
	p, backend := newTestPool(t)
	backend.CommitErr = errors.New("server went away")

	err := p.UpdateTx(context.Background(), "UPDATE T SET A=?", "x")
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}
	if !errors.Is(err, backend.CommitErr) {
		t.Errorf("expected the commit failure in the chain, got %v", err)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestCallOutputsOnly(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "CALL LIB.PROC(?, ?, ?)"
	backend.Script(stmt).Outputs = []any{"OK ", int64(7)}

	res, err := p.Call(context.Background(), stmt,
		Input("widget"),
		Output("VARCHAR", "STATUS"),
		Output("INTEGER", "COUNT"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(res) != 2 {
		t.Errorf("expected exactly 2 keys, got %d: %v", len(res), res)
	}
	if res["STATUS"] != "OK" {
		t.Errorf("expected trimmed 'OK', got %v", res["STATUS"])
	}
	if res["COUNT"] != "7" {
		t.Errorf("expected '7', got %v", res["COUNT"])
	}
	if _, ok := res[ResultSetsKey]; ok {
		t.Error("resultSets key must be absent when no cursor was produced")
	}

	bound := backend.BoundArgs(stmt)
	if len(bound) != 1 || bound[0][0] != "widget" {
		t.Errorf("expected input bound at position 1, got %v", bound)
	}
}

func TestCallWithResultSets(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "CALL LIB.PROC(?, ?)"
	script := backend.Script(stmt)
	script.Outputs = []any{"A", "B"}
	script.Sets = []testdriver.Set{
		{Columns: []string{"ID"}, Rows: [][]driverValue{{int64(1)}, {int64(2)}}},
		{Columns: []string{"CODE"}, Rows: [][]driverValue{{"X "}}},
	}

	res, err := p.Call(context.Background(), stmt,
		Output("VARCHAR", "F1"),
		Output("VARCHAR", "F2"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	if res["F1"] != "A" || res["F2"] != "B" {
		t.Errorf("unexpected output fields: %v", res)
	}
	sets, ok := res[ResultSetsKey].([]ResultSet)
	if !ok {
		t.Fatalf("expected resultSets key, got %v", res[ResultSetsKey])
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 result sets, got %d", len(sets))
	}
	assertResultSet(t, sets[0], ResultSet{
		{"ID": "1", IndexKey: 0},
		{"ID": "2", IndexKey: 1},
	})
	assertResultSet(t, sets[1], ResultSet{
		{"CODE": "X", IndexKey: 0},
	})
}

func TestCallCoercesInputNull(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "CALL LIB.PROC(?)"

	if _, err := p.Call(context.Background(), stmt, Input("")); err != nil {
		t.Fatalf("Call: %v", err)
	}
	bound := backend.BoundArgs(stmt)
	if bound[0][0] != nil {
		t.Errorf("expected empty input bound as NULL, got %v", bound[0][0])
	}
}

func TestCallNullOutput(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "CALL LIB.PROC(?)"
	backend.Script(stmt).Outputs = []any{nil}

	res, err := p.Call(context.Background(), stmt, Output("VARCHAR", "STATUS"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, ok := res["STATUS"]; !ok || v != nil {
		t.Errorf("expected nil output value to be present, got %v (present=%v)", v, ok)
	}
}

func TestCallReleasesResources(t *testing.T) {
	p, backend := newTestPool(t)
	const stmt = "CALL LIB.PROC()"
	backend.Script(stmt).QueryErr = errors.New("procedure missing")

	_, err := p.Call(context.Background(), stmt)
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if got := backend.StmtCloses(); got != 1 {
		t.Errorf("expected statement closed exactly once, got %d", got)
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected connection returned to pool, in use = %d", got)
	}
}

func TestConcurrentQueries(t *testing.T) {
	p, backend := newTestPool(t)
	backend.Script("SELECT 1").Sets = []testdriver.Set{{
		Columns: []string{"N"},
		Rows:    [][]driverValue{{int64(1)}},
	}}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := p.Query(context.Background(), "SELECT 1")
			if err == nil && len(rows) != 1 {
				err = fmt.Errorf("expected 1 row, got %d", len(rows))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent query: %v", err)
		}
	}
	if got := p.db.Stats().InUse; got != 0 {
		t.Errorf("expected all connections returned, in use = %d", got)
	}
}

func assertResultSet(t *testing.T, got, want ResultSet) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Errorf("row %d: expected %d keys, got %d (%v)", i, len(want[i]), len(got[i]), got[i])
			continue
		}
		for k, v := range want[i] {
			if got[i][k] != v {
				t.Errorf("row %d key %q: expected %v, got %v", i, k, v, got[i][k])
			}
		}
	}
}
