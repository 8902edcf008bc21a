package main

import (
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

func daysSince(epoch civil.Date, y int, m time.Month, d int) int {
	return civil.Date{Year: y, Month: m, Day: d}.DaysSince(epoch)
}

func TestEncoderLiteral(t *testing.T) {
	enc := newEncoder(mysqlDialect{}, "right")
	day := daysSince(epochYear1, 2024, time.March, 15)
	legacyDay := daysSince(epochYear1900, 2024, time.March, 15)

	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", NullValue{}, "NULL"},
		{"nil value", nil, "NULL"},
		{"nil binary", BinaryValue(nil), "NULL"},
		{"binary", BinaryValue{0xde, 0xad, 0xbe, 0xef}, "X'deadbeef'"},
		{"empty binary", BinaryValue{}, "X''"},
		{"bool true", BoolValue(true), "true"},
		{"bool false", BoolValue(false), "false"},
		{"tinyint", Uint8Value(255), "255"},
		{"smallint", Int16Value(-32768), "-32768"},
		{"int", Int32Value(42), "42"},
		{"bigint", Int64Value(math.MaxInt64), "9223372036854775807"},
		{"real", Float32Value(0.1), "'0.1'"},
		{"float", Float64Value(-1.5), "'-1.5'"},
		{"float large", Float64Value(1e21), "'1000000000000000000000'"},
		{"guid", GUIDValue(uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")), "'6f9619ff-8b86-d011-b42d-00c04fc964ff'"},
		{"string", StringValue("hello"), "'hello'"},
		{"string with quote", StringValue("O'Brien"), "'O''Brien'"},
		{"xml", XMLValue("<a href='x'/>"), "'<a href=''x''/>'"},
		{"numeric", NumericValue{Unscaled: big.NewInt(12345), Scale: 2}, "'123.45'"},
		{"numeric full scale", NumericValue{Unscaled: big.NewInt(500), Scale: 3}, "'0.500'"},
		{"numeric negative", NumericValue{Unscaled: big.NewInt(-12345), Scale: 2}, "'-123.45'"},
		{"numeric negative below one", NumericValue{Unscaled: big.NewInt(-5), Scale: 1}, "'-0.5'"},
		{"numeric zero scale", NumericValue{Unscaled: big.NewInt(42), Scale: 0}, "'42.0'"},
		{"date", DateValue{Days: uint32(day)}, "'2024-03-15'"},
		{"date epoch", DateValue{Days: 0}, "'0001-01-01'"},
		{"time whole seconds", TimeValue{Increments: 45296 * 10_000_000, Scale: 7}, "'12:34:56'"},
		{"time millis", TimeValue{Increments: 45296500, Scale: 3}, "'12:34:56.500'"},
		{"time scale zero", TimeValue{Increments: 45296, Scale: 0}, "'12:34:56'"},
		{
			"datetime with millis",
			DateTimeValue{Days: int32(legacyDay), SecondsFragments: 13588950},
			"'2024-03-15 12:34:56.500'",
		},
		{
			"datetime whole seconds",
			DateTimeValue{Days: int32(legacyDay), SecondsFragments: 45296 * 300},
			"'2024-03-15 12:34:56'",
		},
		{"datetime epoch", DateTimeValue{}, "'1900-01-01 00:00:00'"},
		{
			"smalldatetime",
			SmallDateTimeValue{Days: uint16(legacyDay), Minutes: 12*60 + 34},
			"'2024-03-15 12:34:00'",
		},
		{
			"datetime2",
			DateTime2Value{Date: DateValue{Days: uint32(day)}, Time: TimeValue{Increments: 452961234567, Scale: 7}},
			"'2024-03-15 12:34:56.1234567'",
		},
		{
			"datetime2 no fraction",
			DateTime2Value{Date: DateValue{Days: uint32(day)}, Time: TimeValue{Increments: 45296000000, Scale: 6}},
			"'2024-03-15 12:34:56'",
		},
		{
			"datetimeoffset positive offset crosses midnight",
			DateTimeOffsetValue{
				DateTime2:     DateTime2Value{Date: DateValue{Days: uint32(day)}, Time: TimeValue{Increments: 5400, Scale: 0}},
				OffsetMinutes: 120,
			},
			"'2024-03-14 23:30:00+00:00'",
		},
		{
			"datetimeoffset negative offset",
			DateTimeOffsetValue{
				DateTime2:     DateTime2Value{Date: DateValue{Days: uint32(day)}, Time: TimeValue{Increments: 22 * 3600, Scale: 0}},
				OffsetMinutes: -300,
			},
			"'2024-03-16 03:00:00+00:00'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.Literal(tt.in)
			if err != nil {
				t.Fatalf("Literal() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Literal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncoderNumericPadding(t *testing.T) {
	v := NumericValue{Unscaled: big.NewInt(5), Scale: 3}

	right, err := newEncoder(mysqlDialect{}, "right").Literal(v)
	if err != nil {
		t.Fatal(err)
	}
	if right != "'0.500'" {
		t.Errorf("right padding = %s, want '0.500'", right)
	}

	left, err := newEncoder(mysqlDialect{}, "left").Literal(v)
	if err != nil {
		t.Fatal(err)
	}
	if left != "'0.005'" {
		t.Errorf("left padding = %s, want '0.005'", left)
	}
}

func TestEncoderBinaryPerDialect(t *testing.T) {
	got, err := newEncoder(postgresDialect{}, "right").Literal(BinaryValue{0x00, 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if got != `'\x00ff'` {
		t.Errorf("postgres binary = %s, want '\\x00ff'", got)
	}
}

func TestEncoderUnsupported(t *testing.T) {
	enc := newEncoder(mysqlDialect{}, "right")
	tests := []struct {
		name string
		in   Value
	}{
		{"unsupported source type", UnsupportedValue{TypeName: "sql_variant"}},
		{"nan", Float64Value(math.NaN())},
		{"infinity", Float32Value(float32(math.Inf(1)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Literal(tt.in)
			var uerr *UnsupportedValueError
			if !errors.As(err, &uerr) {
				t.Fatalf("Literal() error = %v, want *UnsupportedValueError", err)
			}
		})
	}
}

func TestEncoderRow(t *testing.T) {
	enc := newEncoder(mysqlDialect{}, "right")
	got, err := enc.Row([]Value{Int32Value(1), StringValue("a"), NullValue{}})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1", "'a'", "NULL"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	_, err = enc.Row([]Value{Int32Value(1), UnsupportedValue{TypeName: "geography"}})
	if err == nil {
		t.Fatal("Row() with unsupported value: expected error")
	}
	var uerr *UnsupportedValueError
	if !errors.As(err, &uerr) || uerr.TypeName != "geography" {
		t.Errorf("Row() error = %v, want wrapped UnsupportedValueError(geography)", err)
	}
}
