package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/shopspring/decimal"
)

const defaultMSSQLSchema = "dbo"

// maxTemporalScale is the finest fractional-second scale SQL Server stores.
const maxTemporalScale = 7

type mssqlSourceDB struct {
	db     *sql.DB
	schema string
}

func openMSSQLSource(ctx context.Context, dsn, schema string, maxConns int) (*mssqlSourceDB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("parse mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mssql: %w", err)
	}
	return newMSSQLSource(db, schema), nil
}

func newMSSQLSource(db *sql.DB, schema string) *mssqlSourceDB {
	if schema == "" {
		schema = defaultMSSQLSchema
	}
	return &mssqlSourceDB{db: db, schema: schema}
}

func (s *mssqlSourceDB) Name() string { return "SQL Server" }
func (s *mssqlSourceDB) Close() error { return s.db.Close() }

func (s *mssqlSourceDB) quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (s *mssqlSourceDB) ListBaseTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := collectStringRows(ctx, s.db,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = @schema
		 ORDER BY TABLE_NAME`, &tables, sql.Named("schema", s.schema))
	if err != nil {
		return nil, fmt.Errorf("list base tables: %w", err)
	}
	return tables, nil
}

// mssqlColumnsQuery reports each column with a single constraint descriptor.
// When a column takes part in several constraints the most structural one
// wins: PRIMARY KEY, then FOREIGN KEY, UNIQUE, CHECK and finally DEFAULT.
const mssqlColumnsQuery = `
SELECT
	c.COLUMN_NAME,
	c.DATA_TYPE,
	c.CHARACTER_MAXIMUM_LENGTH,
	c.NUMERIC_PRECISION,
	c.NUMERIC_SCALE,
	c.IS_NULLABLE,
	COALESCE(con.DESCRIPTOR,
		CASE WHEN c.COLUMN_DEFAULT IS NOT NULL THEN 'DEFAULT ' + c.COLUMN_DEFAULT END,
		'') AS CONSTRAINT_DESCRIPTOR
FROM INFORMATION_SCHEMA.COLUMNS c
OUTER APPLY (
	SELECT TOP 1
		CASE
			WHEN tc.CONSTRAINT_TYPE = 'PRIMARY KEY' THEN 'PRIMARY KEY'
			WHEN tc.CONSTRAINT_TYPE = 'FOREIGN KEY' THEN 'FOREIGN KEY,' + rcf.TABLE_NAME + ',' + rcf.COLUMN_NAME
			WHEN tc.CONSTRAINT_TYPE = 'UNIQUE' THEN 'UNIQUE'
			WHEN cc.CHECK_CLAUSE IS NOT NULL THEN 'CHECK ' + cc.CHECK_CLAUSE
		END AS DESCRIPTOR
	FROM INFORMATION_SCHEMA.CONSTRAINT_COLUMN_USAGE ccu
	JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		ON ccu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND ccu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
	LEFT JOIN INFORMATION_SCHEMA.CHECK_CONSTRAINTS cc
		ON tc.CONSTRAINT_SCHEMA = cc.CONSTRAINT_SCHEMA AND tc.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
	LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		ON tc.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA AND tc.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
	LEFT JOIN INFORMATION_SCHEMA.CONSTRAINT_COLUMN_USAGE ccu_ref
		ON rc.UNIQUE_CONSTRAINT_SCHEMA = ccu_ref.CONSTRAINT_SCHEMA AND rc.UNIQUE_CONSTRAINT_NAME = ccu_ref.CONSTRAINT_NAME
	LEFT JOIN INFORMATION_SCHEMA.COLUMNS rcf
		ON ccu_ref.TABLE_SCHEMA = rcf.TABLE_SCHEMA AND ccu_ref.TABLE_NAME = rcf.TABLE_NAME AND ccu_ref.COLUMN_NAME = rcf.COLUMN_NAME
	WHERE ccu.TABLE_SCHEMA = c.TABLE_SCHEMA AND ccu.TABLE_NAME = c.TABLE_NAME AND ccu.COLUMN_NAME = c.COLUMN_NAME
	ORDER BY CASE tc.CONSTRAINT_TYPE
		WHEN 'PRIMARY KEY' THEN 1
		WHEN 'FOREIGN KEY' THEN 2
		WHEN 'UNIQUE' THEN 3
		ELSE 4
	END
) con
WHERE c.TABLE_SCHEMA = @schema AND c.TABLE_NAME = @table
ORDER BY c.ORDINAL_POSITION`

func (s *mssqlSourceDB) ColumnSchema(ctx context.Context, table string) ([]ColumnSchema, error) {
	rows, err := s.db.QueryContext(ctx, mssqlColumnsQuery,
		sql.Named("schema", s.schema), sql.Named("table", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnSchema
	for rows.Next() {
		var (
			col                  ColumnSchema
			charLen, prec, scale sql.NullInt64
			nullable, descriptor string
		)
		if err := rows.Scan(&col.ColumnName, &col.DataType, &charLen, &prec, &scale, &nullable, &descriptor); err != nil {
			return nil, err
		}
		col.DataType = strings.ToLower(col.DataType)
		col.CharacterMaximumLength = nullInt(charLen)
		col.NumericPrecision = nullInt(prec)
		col.NumericScale = nullInt(scale)
		col.IsNullable = strings.EqualFold(nullable, "YES")
		c, err := parseConstraint(descriptor)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.ColumnName, err)
		}
		col.Constraint = c
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s has no columns", s.schema, table)
	}
	return cols, nil
}

func (s *mssqlSourceDB) OpenRowCursor(ctx context.Context, table string, cols []ColumnSchema) (RowCursor, error) {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = s.quoteIdentifier(c.ColumnName)
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s",
		strings.Join(names, ", "), s.quoteIdentifier(s.schema), s.quoteIdentifier(table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("open row stream for %s: %w", table, err)
	}
	return newSQLRowCursor(rows, mssqlValue)
}

func (s *mssqlSourceDB) SourceObjects(ctx context.Context) (*SourceObjects, error) {
	objs := &SourceObjects{}
	schema := sql.Named("schema", s.schema)
	if err := collectStringRows(ctx, s.db,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.VIEWS WHERE TABLE_SCHEMA = @schema ORDER BY TABLE_NAME",
		&objs.Views, schema); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	if err := collectStringRows(ctx, s.db,
		"SELECT ROUTINE_NAME FROM INFORMATION_SCHEMA.ROUTINES WHERE ROUTINE_SCHEMA = @schema ORDER BY ROUTINE_NAME",
		&objs.Routines, schema); err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	if err := collectStringRows(ctx, s.db,
		`SELECT tr.name FROM sys.triggers tr
		 JOIN sys.tables tb ON tr.parent_id = tb.object_id
		 WHERE SCHEMA_NAME(tb.schema_id) = @schema ORDER BY tr.name`,
		&objs.Triggers, schema); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return objs, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// mssqlValue converts a go-mssqldb scan result into a native Value, keyed
// on the column's declared SQL Server type.
func mssqlValue(ct *sql.ColumnType, raw any) (Value, error) {
	typeName := strings.ToUpper(ct.DatabaseTypeName())
	switch typeName {
	case "BIT":
		b, ok := raw.(bool)
		if !ok {
			return nil, unexpectedDriverType(typeName, raw)
		}
		return BoolValue(b), nil
	case "TINYINT", "SMALLINT", "INT", "BIGINT":
		n, ok := raw.(int64)
		if !ok {
			return nil, unexpectedDriverType(typeName, raw)
		}
		switch typeName {
		case "TINYINT":
			return Uint8Value(n), nil
		case "SMALLINT":
			return Int16Value(n), nil
		case "INT":
			return Int32Value(n), nil
		}
		return Int64Value(n), nil
	case "REAL":
		switch f := raw.(type) {
		case float32:
			return Float32Value(f), nil
		case float64:
			return Float32Value(f), nil
		}
		return nil, unexpectedDriverType(typeName, raw)
	case "FLOAT":
		switch f := raw.(type) {
		case float32:
			return Float64Value(f), nil
		case float64:
			return Float64Value(f), nil
		}
		return nil, unexpectedDriverType(typeName, raw)
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return numericFromDriver(typeName, raw)
	case "UNIQUEIDENTIFIER":
		var id mssql.UniqueIdentifier
		if err := id.Scan(raw); err != nil {
			return nil, fmt.Errorf("decode uniqueidentifier: %w", err)
		}
		return GUIDValue(id), nil
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT":
		s, ok := driverString(raw)
		if !ok {
			return nil, unexpectedDriverType(typeName, raw)
		}
		return StringValue(s), nil
	case "XML":
		s, ok := driverString(raw)
		if !ok {
			return nil, unexpectedDriverType(typeName, raw)
		}
		return XMLValue(s), nil
	case "BINARY", "VARBINARY", "IMAGE":
		b, ok := raw.([]byte)
		if !ok {
			return nil, unexpectedDriverType(typeName, raw)
		}
		return BinaryValue(b), nil
	case "DATE", "TIME", "DATETIME", "SMALLDATETIME", "DATETIME2", "DATETIMEOFFSET":
		t, ok := raw.(time.Time)
		if !ok {
			return nil, unexpectedDriverType(typeName, raw)
		}
		return temporalFromTime(typeName, temporalScale(ct), t), nil
	default:
		return UnsupportedValue{TypeName: strings.ToLower(typeName)}, nil
	}
}

func unexpectedDriverType(typeName string, raw any) error {
	return fmt.Errorf("unexpected driver value %T for %s", raw, typeName)
}

func driverString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// numericFromDriver parses the decimal text go-mssqldb returns for exact
// numerics, keeping trailing zeros so the column scale survives.
func numericFromDriver(typeName string, raw any) (Value, error) {
	s, ok := driverString(raw)
	if !ok {
		return nil, unexpectedDriverType(typeName, raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", typeName, s, err)
	}
	unscaled := d.Coefficient()
	exp := d.Exponent()
	if exp > 0 {
		unscaled.Mul(unscaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
		exp = 0
	}
	return NumericValue{Unscaled: unscaled, Scale: uint8(-exp)}, nil
}

func temporalScale(ct *sql.ColumnType) int {
	_, scale, ok := ct.DecimalSize()
	if !ok || scale < 0 || scale > maxTemporalScale {
		return maxTemporalScale
	}
	return int(scale)
}

// temporalFromTime rebuilds the native day/tick representation of a
// temporal value from the wall clock reading of t.
func temporalFromTime(typeName string, scale int, t time.Time) Value {
	date := civil.DateOf(t)
	nanos := int64(t.Hour())*int64(time.Hour) +
		int64(t.Minute())*int64(time.Minute) +
		int64(t.Second())*int64(time.Second) +
		int64(t.Nanosecond())
	tv := TimeValue{Increments: uint64(nanos / pow10(9-scale)), Scale: uint8(scale)}

	switch typeName {
	case "DATE":
		return DateValue{Days: uint32(date.DaysSince(epochYear1))}
	case "TIME":
		return tv
	case "DATETIME":
		// 1/300 s ticks, rounded to the nearest tick.
		ticks := (nanos*3 + 5_000_000) / 10_000_000
		return DateTimeValue{Days: int32(date.DaysSince(epochYear1900)), SecondsFragments: uint32(ticks)}
	case "SMALLDATETIME":
		return SmallDateTimeValue{
			Days:    uint16(date.DaysSince(epochYear1900)),
			Minutes: uint16(t.Hour()*60 + t.Minute()),
		}
	case "DATETIME2":
		return DateTime2Value{Date: DateValue{Days: uint32(date.DaysSince(epochYear1))}, Time: tv}
	default:
		_, offset := t.Zone()
		return DateTimeOffsetValue{
			DateTime2:     DateTime2Value{Date: DateValue{Days: uint32(date.DaysSince(epochYear1))}, Time: tv},
			OffsetMinutes: int16(offset / 60),
		}
	}
}
