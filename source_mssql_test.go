package main

import (
	"context"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMSSQLColumnSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS c").
		WillReturnRows(sqlmock.NewRows([]string{
			"COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE", "IS_NULLABLE", "CONSTRAINT_DESCRIPTOR",
		}).
			AddRow("OrderID", "INT", nil, int64(10), int64(0), "NO", "PRIMARY KEY").
			AddRow("CustomerID", "int", nil, int64(10), int64(0), "YES", "FOREIGN KEY,Customers,CustomerID").
			AddRow("Notes", "nvarchar", int64(-1), nil, nil, "YES", "").
			AddRow("Qty", "smallint", nil, int64(5), int64(0), "NO", "CHECK ([Qty]>(0))").
			AddRow("Freight", "money", nil, int64(19), int64(4), "NO", "DEFAULT ((0))"))

	src := newMSSQLSource(db, "")
	cols, err := src.ColumnSchema(context.Background(), "Orders")
	if err != nil {
		t.Fatalf("ColumnSchema() error: %v", err)
	}

	want := []ColumnSchema{
		{ColumnName: "OrderID", DataType: "int", NumericPrecision: intPtr(10), NumericScale: intPtr(0), Constraint: PrimaryKey{}},
		{ColumnName: "CustomerID", DataType: "int", NumericPrecision: intPtr(10), NumericScale: intPtr(0), IsNullable: true,
			Constraint: ForeignKey{ReferencedTable: "Customers", ReferencedColumn: "CustomerID"}},
		{ColumnName: "Notes", DataType: "nvarchar", CharacterMaximumLength: intPtr(-1), IsNullable: true},
		{ColumnName: "Qty", DataType: "smallint", NumericPrecision: intPtr(5), NumericScale: intPtr(0), Constraint: Check{Expression: "([Qty]>(0))"}},
		{ColumnName: "Freight", DataType: "money", NumericPrecision: intPtr(19), NumericScale: intPtr(4), Constraint: Default{Expression: "((0))"}},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("ColumnSchema() =\n%+v\nwant\n%+v", cols, want)
	}
	if src.schema != "dbo" {
		t.Errorf("schema = %q, want dbo", src.schema)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMSSQLColumnSchemaErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	cols := []string{"COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE", "IS_NULLABLE", "CONSTRAINT_DESCRIPTOR"}

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS c").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS c").WillReturnRows(
		sqlmock.NewRows(cols).AddRow("a", "int", nil, nil, nil, "NO", "FOREIGN KEY,broken"))

	src := newMSSQLSource(db, "sales")
	if _, err := src.ColumnSchema(context.Background(), "Missing"); err == nil {
		t.Error("ColumnSchema() on a table without columns: expected error")
	}
	if _, err := src.ColumnSchema(context.Background(), "Broken"); err == nil {
		t.Error("ColumnSchema() with a malformed descriptor: expected error")
	}
}

func TestMSSQLListBaseTablesAndObjects(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("Customers").AddRow("Orders"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.VIEWS").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("BigOrders"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.ROUTINES").
		WillReturnRows(sqlmock.NewRows([]string{"ROUTINE_NAME"}))
	mock.ExpectQuery("FROM sys.triggers").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("trg_orders_audit"))

	src := newMSSQLSource(db, "dbo")
	tables, err := src.ListBaseTables(context.Background())
	if err != nil {
		t.Fatalf("ListBaseTables() error: %v", err)
	}
	if !reflect.DeepEqual(tables, []string{"Customers", "Orders"}) {
		t.Errorf("ListBaseTables() = %v", tables)
	}

	objs, err := src.SourceObjects(context.Background())
	if err != nil {
		t.Fatalf("SourceObjects() error: %v", err)
	}
	if len(objs.Views) != 1 || len(objs.Routines) != 0 || len(objs.Triggers) != 1 {
		t.Errorf("SourceObjects() = %+v", objs)
	}
}

func TestMSSQLRowCursorValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	created := time.Date(2024, time.March, 15, 12, 34, 56, 500_000_000, time.UTC)
	stamp := time.Date(2024, time.March, 15, 12, 34, 56, 123_000_000, time.UTC)
	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("Flag").OfType("BIT", false),
		mock.NewColumn("Qty").OfType("INT", int64(0)),
		mock.NewColumn("Price").OfType("DECIMAL", "").WithPrecisionAndScale(10, 3),
		mock.NewColumn("ID").OfType("UNIQUEIDENTIFIER", ""),
		mock.NewColumn("Name").OfType("NVARCHAR", ""),
		mock.NewColumn("Created").OfType("DATETIME", time.Time{}),
		mock.NewColumn("Stamp").OfType("DATETIME2", time.Time{}).WithPrecisionAndScale(27, 3),
		mock.NewColumn("Shape").OfType("GEOGRAPHY", []byte(nil)),
		mock.NewColumn("Note").OfType("NVARCHAR", "").Nullable(true),
	).AddRow(true, int64(42), []byte("12.500"), "6F9619FF-8B86-D011-B42D-00C04FC964FF", "Zoë", created, stamp, []byte{0xe6, 0x10}, nil)
	mock.ExpectQuery(`SELECT \[Flag\], .* FROM \[dbo\]\.\[Orders\]`).WillReturnRows(rows)

	src := newMSSQLSource(db, "dbo")
	cols := []ColumnSchema{
		{ColumnName: "Flag"}, {ColumnName: "Qty"}, {ColumnName: "Price"}, {ColumnName: "ID"}, {ColumnName: "Name"},
		{ColumnName: "Created"}, {ColumnName: "Stamp"}, {ColumnName: "Shape"}, {ColumnName: "Note"},
	}
	cur, err := src.OpenRowCursor(context.Background(), "Orders", cols)
	if err != nil {
		t.Fatalf("OpenRowCursor() error: %v", err)
	}
	defer cur.Close()

	if !cur.Next() {
		t.Fatalf("Next() = false, err = %v", cur.Err())
	}
	values, err := cur.Values()
	if err != nil {
		t.Fatalf("Values() error: %v", err)
	}

	if values[0] != BoolValue(true) || values[1] != Int32Value(42) {
		t.Errorf("values[0:2] = %#v, %#v", values[0], values[1])
	}
	if n, ok := values[2].(NumericValue); !ok || n.Scale != 3 || n.Unscaled.Cmp(big.NewInt(12500)) != 0 {
		t.Errorf("values[2] = %#v, want 12.500", values[2])
	}
	if u, ok := values[7].(UnsupportedValue); !ok || u.TypeName != "geography" {
		t.Errorf("values[7] = %#v, want unsupported geography", values[7])
	}
	if _, ok := values[8].(NullValue); !ok {
		t.Errorf("values[8] = %#v, want NullValue", values[8])
	}

	enc := newEncoder(mysqlDialect{}, "right")
	wantLiterals := map[int]string{
		2: "'12.500'",
		3: "'6f9619ff-8b86-d011-b42d-00c04fc964ff'",
		4: "'Zoë'",
		5: "'2024-03-15 12:34:56.500'",
		6: "'2024-03-15 12:34:56.123'",
	}
	for i, want := range wantLiterals {
		got, err := enc.Literal(values[i])
		if err != nil {
			t.Errorf("Literal(values[%d]) error: %v", i, err)
			continue
		}
		if got != want {
			t.Errorf("Literal(values[%d]) = %s, want %s", i, got, want)
		}
	}
}

func TestNumericFromDriver(t *testing.T) {
	tests := []struct {
		in        any
		unscaled  int64
		scale     uint8
		wantError bool
	}{
		{"0.500", 500, 3, false},
		{[]byte("-12.34"), -1234, 2, false},
		{"100", 100, 0, false},
		{"214748.3647", 2147483647, 4, false},
		{"abc", 0, 0, true},
		{12.5, 0, 0, true},
	}
	for _, tt := range tests {
		v, err := numericFromDriver("DECIMAL", tt.in)
		if tt.wantError {
			if err == nil {
				t.Errorf("numericFromDriver(%v) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("numericFromDriver(%v) error: %v", tt.in, err)
			continue
		}
		n := v.(NumericValue)
		if n.Unscaled.Int64() != tt.unscaled || n.Scale != tt.scale {
			t.Errorf("numericFromDriver(%v) = %s scale %d, want %d scale %d", tt.in, n.Unscaled, n.Scale, tt.unscaled, tt.scale)
		}
	}
}

func TestTemporalFromTime(t *testing.T) {
	ts := time.Date(2024, time.March, 15, 12, 34, 56, 123_456_700, time.UTC)
	offset := time.Date(2024, time.March, 15, 1, 30, 0, 0, time.FixedZone("", 2*60*60))
	enc := newEncoder(mysqlDialect{}, "right")

	tests := []struct {
		typeName string
		scale    int
		in       time.Time
		want     string
	}{
		{"DATE", 0, ts, "'2024-03-15'"},
		{"TIME", 7, ts, "'12:34:56.1234567'"},
		{"TIME", 0, ts, "'12:34:56'"},
		{"DATETIME", 7, ts, "'2024-03-15 12:34:56.123'"},
		{"SMALLDATETIME", 0, ts, "'2024-03-15 12:34:00'"},
		{"DATETIME2", 7, ts, "'2024-03-15 12:34:56.1234567'"},
		{"DATETIME2", 3, ts, "'2024-03-15 12:34:56.123'"},
		{"DATETIMEOFFSET", 0, offset, "'2024-03-14 23:30:00+00:00'"},
	}
	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			got, err := enc.Literal(temporalFromTime(tt.typeName, tt.scale, tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Literal(%s) = %s, want %s", tt.typeName, got, tt.want)
			}
		})
	}
}
