// Package fakedriver is a recording database/sql driver for tests that must observe
// which statements reach the database.
package fakedriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Call is one statement received by the driver.
type Call struct {
	Query string
	Args  []any
}

// Recorder records statements and connection churn. Zero value is ready to use.
type Recorder struct {
	mu sync.Mutex

	execs   []Call
	queries []Call
	opens   int
	closes  int

	// ExecErr fails every Exec.
	ExecErr error
	// QueryErr fails every Query.
	QueryErr error
	// PingErr fails every Ping, and so every Open.
	PingErr error
	// RowsAffected is reported by every successful Exec.
	RowsAffected int64
	// Columns and Rows are returned by every successful Query.
	Columns []string
	Rows    [][]driver.Value
}

// Open returns a pinged handle backed by the recorder, registered under driverName for sqlx
// bindvar resolution.
func (r *Recorder) Open(ctx context.Context, driverName string) (*sqlx.DB, error) {
	db := sqlx.NewDb(sql.OpenDB(connector{r}), driverName)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r.mu.Lock()
	r.opens++
	r.mu.Unlock()
	return db, nil
}

// Execs returns the Exec calls received so far.
func (r *Recorder) Execs() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.execs...)
}

// Queries returns the Query calls received so far.
func (r *Recorder) Queries() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.queries...)
}

// Statements counts every Exec and Query.
func (r *Recorder) Statements() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.execs) + len(r.queries)
}

// Opens counts handles opened through Open.
func (r *Recorder) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Closes counts closed driver connections.
func (r *Recorder) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

type connector struct{ r *Recorder }

func (c connector) Connect(context.Context) (driver.Conn, error) { return &conn{r: c.r}, nil }
func (c connector) Driver() driver.Driver                        { return drv{c.r} }

type drv struct{ r *Recorder }

func (d drv) Open(string) (driver.Conn, error) { return &conn{r: d.r}, nil }

type conn struct{ r *Recorder }

var errUnsupported = errors.New("fakedriver: not supported")

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errUnsupported }
func (c *conn) Begin() (driver.Tx, error)           { return nil, errUnsupported }

func (c *conn) Close() error {
	c.r.mu.Lock()
	c.r.closes++
	c.r.mu.Unlock()
	return nil
}

func (c *conn) Ping(context.Context) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.r.PingErr
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.execs = append(c.r.execs, Call{Query: query, Args: values(args)})
	if c.r.ExecErr != nil {
		return nil, c.r.ExecErr
	}
	return driver.RowsAffected(c.r.RowsAffected), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.queries = append(c.r.queries, Call{Query: query, Args: values(args)})
	if c.r.QueryErr != nil {
		return nil, c.r.QueryErr
	}
	return &rows{cols: c.r.Columns, data: c.r.Rows}, nil
}

func values(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

type rows struct {
	cols []string
	data [][]driver.Value
	pos  int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}
