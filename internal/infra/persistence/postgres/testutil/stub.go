// Package testutil provides a fake database/sql driver for exercising the
// postgres store without a server. It understands the handful of statement
// shapes the store issues: DDL (recorded, otherwise ignored), single-row
// INSERT with an optional ON CONFLICT clause keyed on the first column, and
// plain column SELECTs. Writes made inside a transaction are discarded when
// the transaction rolls back or fails to commit.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
)

// Row is one stored record keyed by lower-case column name.
type Row = map[string]any

// StubConn records executed statements and holds rows per table. The Fail
// switches inject errors at the matching step.
type StubConn struct {
	Execs  []string
	Tables map[string][]Row

	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error

	saved map[string][]Row
}

var (
	driverSeq atomic.Int64

	insertRe = regexp.MustCompile(`(?is)^\s*insert\s+into\s+(\w+)\s*\(([^)]*)\)`)
	selectRe = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+(\w+)`)
)

// NewStubDB registers a fresh driver instance and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: map[string][]Row{}}
	name := fmt.Sprintf("pgstub-%d", driverSeq.Add(1))
	sql.Register(name, connector{conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	// The stub is a single shared connection.
	db.SetMaxOpenConns(1)
	return db, conn
}

type connector struct{ conn *StubConn }

func (c connector) Open(string) (driver.Conn, error) { return c.conn, nil }

// Count reports the number of rows held for table.
func (c *StubConn) Count(table string) int { return len(c.Tables[table]) }

// Prepare is unused; every statement goes through ExecContext or QueryContext.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping shares the FailExec switch so a broken database fails at startup.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	c.saved = cloneTables(c.Tables)
	return stubTx{c}, nil
}

func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	m := insertRe.FindStringSubmatch(query)
	if m == nil {
		return driver.RowsAffected(0), nil
	}
	table := strings.ToLower(m[1])
	if c.FailTables[table] {
		return nil, fmt.Errorf("stub: write to %s failed", table)
	}
	cols := columns(m[2])
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %s expects %d values, got %d", table, len(cols), len(args))
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}

	upper := strings.ToUpper(query)
	if strings.Contains(upper, "ON CONFLICT") {
		for i, existing := range c.Tables[table] {
			if existing[cols[0]] != row[cols[0]] {
				continue
			}
			if strings.Contains(upper, "DO NOTHING") {
				return driver.RowsAffected(0), nil
			}
			c.Tables[table][i] = row
			return driver.RowsAffected(1), nil
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub: unsupported query: %s", query)
	}
	table := strings.ToLower(m[2])
	if c.FailTables[table] {
		return nil, fmt.Errorf("stub: read from %s failed", table)
	}
	cols := columns(m[1])
	out := &stubRows{cols: cols, err: c.RowsErr}
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		t.restore()
		return errors.New("stub: commit failed")
	}
	t.conn.saved = nil
	return nil
}

func (t stubTx) Rollback() error {
	t.restore()
	return nil
}

func (t stubTx) restore() {
	if t.conn.saved != nil {
		t.conn.Tables = t.conn.saved
		t.conn.saved = nil
	}
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}

func columns(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return out
}

func cloneTables(in map[string][]Row) map[string][]Row {
	out := make(map[string][]Row, len(in))
	for table, rows := range in {
		copied := make([]Row, len(rows))
		for i, row := range rows {
			r := make(Row, len(row))
			for k, v := range row {
				r[k] = v
			}
			copied[i] = r
		}
		out[table] = copied
	}
	return out
}
