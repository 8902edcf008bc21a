package main

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
)

// SourceDB abstracts the source engine so sqlferry can read from more than
// one kind of database (SQL Server, SQLite).
type SourceDB interface {
	// Name returns a human-readable name for the source ("SQL Server", "SQLite").
	Name() string

	// ListBaseTables returns every base table, excluding views.
	ListBaseTables(ctx context.Context) ([]string, error)

	// ColumnSchema returns the columns of table in ordinal order, each with at
	// most one constraint attached.
	ColumnSchema(ctx context.Context, table string) ([]ColumnSchema, error)

	// OpenRowCursor streams every row of table, selecting cols in order.
	OpenRowCursor(ctx context.Context, table string, cols []ColumnSchema) (RowCursor, error)

	// SourceObjects discovers views, routines and triggers that are not migrated.
	SourceObjects(ctx context.Context) (*SourceObjects, error)

	Close() error
}

// RowCursor is a forward-only stream of native row values.
type RowCursor interface {
	Next() bool
	Values() ([]Value, error)
	Err() error
	Close() error
}

// openSourceDB connects to the source described by cfg.
func openSourceDB(ctx context.Context, cfg SourceConfig, maxConns int) (SourceDB, error) {
	var (
		db  SourceDB
		err error
	)
	switch cfg.Type {
	case "mssql":
		db, err = openMSSQLSource(ctx, cfg.DSN, cfg.Schema, maxConns)
	case "sqlite":
		db, err = openSQLiteSource(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported source type %q (must be mssql or sqlite)", cfg.Type)
	}
	if err != nil {
		return nil, &ConnectionError{Engine: cfg.Type, Err: err}
	}
	return db, nil
}

// valueConverter turns one scanned driver value into a native Value.
type valueConverter func(ct *sql.ColumnType, raw any) (Value, error)

// sqlRowCursor adapts *sql.Rows to RowCursor.
type sqlRowCursor struct {
	rows    *sql.Rows
	types   []*sql.ColumnType
	convert valueConverter
	raw     []any
	dest    []any
}

func newSQLRowCursor(rows *sql.Rows, convert valueConverter) (*sqlRowCursor, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read column types: %w", err)
	}
	c := &sqlRowCursor{
		rows:    rows,
		types:   types,
		convert: convert,
		raw:     make([]any, len(types)),
		dest:    make([]any, len(types)),
	}
	for i := range c.raw {
		c.dest[i] = &c.raw[i]
	}
	return c, nil
}

func (c *sqlRowCursor) Next() bool   { return c.rows.Next() }
func (c *sqlRowCursor) Err() error   { return c.rows.Err() }
func (c *sqlRowCursor) Close() error { return c.rows.Close() }

func (c *sqlRowCursor) Values() ([]Value, error) {
	if err := c.rows.Scan(c.dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	values := make([]Value, len(c.raw))
	for i, raw := range c.raw {
		if raw == nil {
			values[i] = NullValue{}
			continue
		}
		v, err := c.convert(c.types[i], raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.types[i].Name(), err)
		}
		values[i] = v
	}
	return values, nil
}

// encodedRows renders each cursor row to literal text. The sequence ends at
// the first error, which it yields.
func encodedRows(cur RowCursor, enc *Encoder) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for cur.Next() {
			values, err := cur.Values()
			if err != nil {
				yield(nil, err)
				return
			}
			row, err := enc.Row(values)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, fmt.Errorf("read rows: %w", err))
		}
	}
}
