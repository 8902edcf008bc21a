package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fakeTarget is an in-memory TargetDB that records every transaction.
type fakeTarget struct {
	dialect   Dialect
	maxPacket int64
	packetErr error

	// failExec, when set, is consulted before a transaction is recorded.
	failExec func(ctx context.Context, stmts []string) error

	mu     sync.Mutex
	tables map[string]int64 // name -> row count
	txs    []fakeTx
}

type fakeTx struct {
	opts  TxOptions
	stmts []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		dialect:   mysqlDialect{},
		maxPacket: 64 << 20,
		tables:    make(map[string]int64),
	}
}

func (f *fakeTarget) Name() string     { return "fake" }
func (f *fakeTarget) Dialect() Dialect { return f.dialect }
func (f *fakeTarget) Close() error     { return nil }

func (f *fakeTarget) MaxAllowedPacket(context.Context) (int64, error) {
	return f.maxPacket, f.packetErr
}

func (f *fakeTarget) ListTables(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.tables {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeTarget) TableExists(_ context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeTarget) HasRows(_ context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table] > 0, nil
}

func (f *fakeTarget) ExecInTransaction(ctx context.Context, opts TxOptions, stmts ...string) error {
	if f.failExec != nil {
		if err := f.failExec(ctx, stmts); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, fakeTx{opts: opts, stmts: stmts})
	for _, s := range stmts {
		name := fakeStmtTable(s)
		switch {
		case strings.HasPrefix(s, "CREATE TABLE"):
			f.tables[name] = 0
		case strings.HasPrefix(s, "INSERT INTO"):
			f.tables[name] += int64(strings.Count(s, "), (") + 1)
		case strings.HasPrefix(s, "TRUNCATE TABLE"):
			f.tables[name] = 0
		case strings.HasPrefix(s, "DROP TABLE"):
			delete(f.tables, name)
		}
	}
	return nil
}

// statements returns every executed statement in order.
func (f *fakeTarget) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, tx := range f.txs {
		out = append(out, tx.stmts...)
	}
	return out
}

func (f *fakeTarget) transactions() []fakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeTx(nil), f.txs...)
}

// fakeStmtTable extracts the first backquoted identifier of a statement.
func fakeStmtTable(stmt string) string {
	start := strings.IndexByte(stmt, '`')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(stmt[start+1:], '`')
	if end < 0 {
		return ""
	}
	return stmt[start+1 : start+1+end]
}

// fakeSource serves fixed schemas and rows and measures how many tables are
// read at the same time.
type fakeSource struct {
	tables    []string
	schemas   map[string][]ColumnSchema
	rows      map[string][][]Value
	schemaErr map[string]error
	objects   *SourceObjects
	objectErr error
	delay     time.Duration

	listed    atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) ListBaseTables(context.Context) ([]string, error) {
	f.listed.Add(1)
	return f.tables, nil
}

// ColumnSchema marks the table active until its cursor is closed. Tables
// that fail before opening a cursor are released here; tables rejected later
// (mapping, populated) stay counted.
func (f *fakeSource) ColumnSchema(ctx context.Context, table string) ([]ColumnSchema, error) {
	n := f.active.Add(1)
	for {
		cur := f.maxActive.Load()
		if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if err := f.wait(ctx); err != nil {
		f.active.Add(-1)
		return nil, err
	}
	if err := f.schemaErr[table]; err != nil {
		f.active.Add(-1)
		return nil, err
	}
	cols, ok := f.schemas[table]
	if !ok {
		f.active.Add(-1)
		return nil, errors.New("no such table")
	}
	return cols, nil
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSource) OpenRowCursor(_ context.Context, table string, _ []ColumnSchema) (RowCursor, error) {
	return &fakeCursor{
		rows: f.rows[table],
		onClose: func() {
			time.Sleep(f.delay)
			f.active.Add(-1)
		},
	}, nil
}

func (f *fakeSource) SourceObjects(context.Context) (*SourceObjects, error) {
	return f.objects, f.objectErr
}

type fakeCursor struct {
	rows    [][]Value
	pos     int
	err     error
	closed  bool
	onClose func()
}

func (c *fakeCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Values() ([]Value, error) { return c.rows[c.pos-1], nil }
func (c *fakeCursor) Err() error               { return c.err }

func (c *fakeCursor) Close() error {
	if !c.closed && c.onClose != nil {
		c.onClose()
	}
	c.closed = true
	return nil
}
