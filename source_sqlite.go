package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// sqliteTemporalScale is the fractional-second scale used for SQLite
// timestamps, which the driver parses with microsecond precision at best.
const sqliteTemporalScale = 6

type sqliteSourceDB struct {
	db *sql.DB
}

func openSQLiteSource(ctx context.Context, dsn string) (*sqliteSourceDB, error) {
	uri, err := sqliteReadOnlyURI(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &sqliteSourceDB{db: db}, nil
}

func (s *sqliteSourceDB) Name() string { return "SQLite" }
func (s *sqliteSourceDB) Close() error { return s.db.Close() }

func (s *sqliteSourceDB) quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// --- DSN handling ---

func sqliteReadOnlyURI(dsn string) (string, error) {
	if dsn == ":memory:" || dsn == "file::memory:" || strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory SQLite databases are not supported (each connection gets a separate DB)")
	}
	if !strings.HasPrefix(dsn, "file:") {
		return "file:" + dsn + "?mode=ro", nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite URI: %w", err)
	}
	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// --- Schema introspection ---

func (s *sqliteSourceDB) ListBaseTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := collectStringRows(ctx, s.db,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name", &tables)
	if err != nil {
		return nil, fmt.Errorf("list base tables: %w", err)
	}
	return tables, nil
}

func (s *sqliteSourceDB) SourceObjects(ctx context.Context) (*SourceObjects, error) {
	objs := &SourceObjects{}
	if err := collectStringRows(ctx, s.db,
		"SELECT name FROM sqlite_master WHERE type='view' ORDER BY name", &objs.Views); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	if err := collectStringRows(ctx, s.db,
		"SELECT name FROM sqlite_master WHERE type='trigger' ORDER BY name", &objs.Triggers); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return objs, nil
}

type sqliteColumnInfo struct {
	col  ColumnSchema
	pk   int
	dflt sql.NullString
}

// ColumnSchema reads PRAGMA table_xinfo and attaches one constraint per
// column: primary key, then foreign key, single-column UNIQUE, then DEFAULT.
// SQLite does not expose CHECK clauses through pragmas.
func (s *sqliteSourceDB) ColumnSchema(ctx context.Context, table string) ([]ColumnSchema, error) {
	infos, err := s.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("table %s not found or has no columns", table)
	}
	fks, err := s.foreignKeys(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	uniques, err := s.uniqueColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("unique indexes: %w", err)
	}

	cols := make([]ColumnSchema, len(infos))
	for i, ci := range infos {
		col := ci.col
		switch {
		case ci.pk > 0:
			col.Constraint = PrimaryKey{}
		case fks[col.ColumnName] != nil:
			col.Constraint = *fks[col.ColumnName]
		case uniques[col.ColumnName]:
			col.Constraint = Unique{}
		case ci.dflt.Valid:
			col.Constraint = Default{Expression: ci.dflt.String}
		}
		cols[i] = col
	}
	return cols, nil
}

func (s *sqliteSourceDB) tableColumns(ctx context.Context, table string) ([]sqliteColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_xinfo(%s)", s.quoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []sqliteColumnInfo
	for rows.Next() {
		var cid, notnull, pk, hidden int
		var name, declType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &declType, &notnull, &dflt, &pk, &hidden); err != nil {
			return nil, err
		}
		// hidden=1 marks virtual table internals; generated columns (2, 3) are readable.
		if hidden == 1 {
			continue
		}
		col := ColumnSchema{
			ColumnName: name,
			DataType:   strings.ToLower(normalizeAffinity(declType)),
			IsNullable: notnull == 0 && pk == 0,
		}
		parseSQLiteTypeParams(&col, declType)
		infos = append(infos, sqliteColumnInfo{col: col, pk: pk, dflt: dflt})
	}
	return infos, rows.Err()
}

// foreignKeys maps each single-column foreign key to its reference. An
// empty "to" column refers to the parent's primary key.
func (s *sqliteSourceDB) foreignKeys(ctx context.Context, table string) (map[string]*ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", s.quoteIdentifier(table)))
	if err != nil {
		return nil, err
	}

	type fkRow struct {
		id                 int
		refTable, from, to string
	}
	var list []fkRow
	parts := make(map[int]int)
	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			rows.Close()
			return nil, err
		}
		parts[id]++
		list = append(list, fkRow{id: id, refTable: refTable, from: from, to: to.String})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make(map[string]*ForeignKey)
	for _, fk := range list {
		if parts[fk.id] > 1 || out[fk.from] != nil {
			continue
		}
		to := fk.to
		if to == "" {
			pk, err := s.primaryKeyColumn(ctx, fk.refTable)
			if err != nil {
				return nil, err
			}
			if pk == "" {
				continue
			}
			to = pk
		}
		out[fk.from] = &ForeignKey{ReferencedTable: fk.refTable, ReferencedColumn: to}
	}
	return out, nil
}

func (s *sqliteSourceDB) primaryKeyColumn(ctx context.Context, table string) (string, error) {
	infos, err := s.tableColumns(ctx, table)
	if err != nil {
		return "", err
	}
	var pk string
	for _, ci := range infos {
		if ci.pk == 0 {
			continue
		}
		if pk != "" {
			return "", nil
		}
		pk = ci.col.ColumnName
	}
	return pk, nil
}

// uniqueColumns returns the columns covered by a single-column UNIQUE index.
func (s *sqliteSourceDB) uniqueColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", s.quoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		if unique == 1 && origin != "pk" && partial == 0 {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make(map[string]bool)
	for _, name := range names {
		var cols []string
		if err := collectNullableStringRows(ctx, s.db,
			fmt.Sprintf("SELECT name FROM pragma_index_info(%s)", quoteString(name)), &cols); err != nil {
			return nil, err
		}
		if len(cols) == 1 && cols[0] != "" {
			out[cols[0]] = true
		}
	}
	return out, nil
}

func collectNullableStringRows(ctx context.Context, db *sql.DB, query string, out *[]string) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return err
		}
		*out = append(*out, v.String)
	}
	return rows.Err()
}

// normalizeAffinity extracts the base type name for SQLite's flexible type system.
func normalizeAffinity(declaredType string) string {
	dt := strings.TrimSpace(declaredType)
	if dt == "" {
		return "blob" // no declared type = BLOB affinity
	}
	if idx := strings.IndexByte(dt, '('); idx >= 0 {
		dt = dt[:idx]
	}
	return strings.TrimSpace(dt)
}

// parseSQLiteTypeParams reads "(n)" or "(p, s)" from a declared type. A
// single parameter is a length for character types and a precision otherwise.
func parseSQLiteTypeParams(col *ColumnSchema, declaredType string) {
	open := strings.IndexByte(declaredType, '(')
	end := strings.LastIndexByte(declaredType, ')')
	if open < 0 || end <= open {
		return
	}
	var nums []int64
	for _, p := range strings.Split(declaredType[open+1:end], ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return
		}
		nums = append(nums, n)
	}
	switch {
	case len(nums) == 2:
		col.NumericPrecision = intPtr(nums[0])
		col.NumericScale = intPtr(nums[1])
	case len(nums) == 1 && strings.Contains(col.DataType, "char"):
		col.CharacterMaximumLength = intPtr(nums[0])
	case len(nums) == 1:
		col.NumericPrecision = intPtr(nums[0])
	}
}

// --- Data ---

func (s *sqliteSourceDB) OpenRowCursor(ctx context.Context, table string, cols []ColumnSchema) (RowCursor, error) {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = s.quoteIdentifier(c.ColumnName)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), s.quoteIdentifier(table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("open row stream for %s: %w", table, err)
	}
	return newSQLRowCursor(rows, sqliteValue)
}

// sqliteValue converts by storage class, since SQLite values are not bound
// to their declared column type.
func sqliteValue(ct *sql.ColumnType, raw any) (Value, error) {
	switch v := raw.(type) {
	case int64:
		return Int64Value(v), nil
	case float64:
		return Float64Value(v), nil
	case bool:
		return BoolValue(v), nil
	case string:
		return StringValue(v), nil
	case []byte:
		return BinaryValue(v), nil
	case time.Time:
		if strings.EqualFold(normalizeAffinity(ct.DatabaseTypeName()), "date") {
			return temporalFromTime("DATE", 0, v), nil
		}
		return temporalFromTime("DATETIME2", sqliteTemporalScale, v), nil
	default:
		return UnsupportedValue{TypeName: fmt.Sprintf("%T", raw)}, nil
	}
}
