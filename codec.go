package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

const nanosPerDay = int64(24 * time.Hour)

var (
	epochYear1    = civil.Date{Year: 1, Month: time.January, Day: 1}
	epochYear1900 = civil.Date{Year: 1900, Month: time.January, Day: 1}
)

// binaryLiteraler renders hex digits as a destination binary literal.
type binaryLiteraler interface {
	BinaryLiteral(hexDigits string) string
}

// Encoder renders native source values as destination SQL literal text.
type Encoder struct {
	binary binaryLiteraler
	// padFractionLeft left-pads numeric fractional digits to the column
	// scale. The default pads on the right.
	padFractionLeft bool
}

func newEncoder(d binaryLiteraler, padding string) *Encoder {
	return &Encoder{binary: d, padFractionLeft: padding == "left"}
}

// Row renders every value of a row, in column order.
func (e *Encoder) Row(values []Value) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		lit, err := e.Literal(v)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out[i] = lit
	}
	return out, nil
}

// Literal renders a single value.
func (e *Encoder) Literal(v Value) (string, error) {
	switch v := v.(type) {
	case nil, NullValue:
		return "NULL", nil
	case BinaryValue:
		if v == nil {
			return "NULL", nil
		}
		return e.binary.BinaryLiteral(hex.EncodeToString(v)), nil
	case BoolValue:
		return strconv.FormatBool(bool(v)), nil
	case Uint8Value:
		return strconv.FormatUint(uint64(v), 10), nil
	case Int16Value:
		return strconv.FormatInt(int64(v), 10), nil
	case Int32Value:
		return strconv.FormatInt(int64(v), 10), nil
	case Int64Value:
		return strconv.FormatInt(int64(v), 10), nil
	case Float32Value:
		return formatFloat(float64(v), 32)
	case Float64Value:
		return formatFloat(float64(v), 64)
	case GUIDValue:
		return quoteString(uuid.UUID(v).String()), nil
	case StringValue:
		return quoteString(string(v)), nil
	case XMLValue:
		return quoteString(string(v)), nil
	case NumericValue:
		return e.numeric(v), nil
	case DateValue:
		return "'" + formatDate(dateFromDays(epochYear1, int64(v.Days))) + "'", nil
	case TimeValue:
		return "'" + formatTime(timeFromNanos(v.nanos()), v.fraction()) + "'", nil
	case DateTimeValue:
		return "'" + formatDateTime(v.civil()) + "'", nil
	case SmallDateTimeValue:
		return "'" + formatDateTime(v.civil()) + "'", nil
	case DateTime2Value:
		return "'" + formatDateTime2(v.civil(), v.Time.fraction()) + "'", nil
	case DateTimeOffsetValue:
		return "'" + formatDateTime2(v.utc(), v.DateTime2.Time.fraction()) + "+00:00'", nil
	case UnsupportedValue:
		return "", &UnsupportedValueError{TypeName: v.TypeName}
	default:
		return "", &UnsupportedValueError{TypeName: fmt.Sprintf("%T", v)}
	}
}

// numeric renders int_part "." |dec_part| with the fractional digits padded
// to the value's scale.
func (e *Encoder) numeric(v NumericValue) string {
	intPart := v.IntPart()
	frac := new(big.Int).Abs(v.DecPart()).String()
	if pad := int(v.Scale) - len(frac); pad > 0 {
		if e.padFractionLeft {
			frac = strings.Repeat("0", pad) + frac
		} else {
			frac += strings.Repeat("0", pad)
		}
	}
	sign := ""
	if intPart.Sign() == 0 && v.Unscaled != nil && v.Unscaled.Sign() < 0 {
		sign = "-"
	}
	return "'" + sign + intPart.String() + "." + frac + "'"
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &UnsupportedValueError{TypeName: strconv.FormatFloat(f, 'g', -1, bits)}
	}
	return quoteString(strconv.FormatFloat(f, 'f', -1, bits)), nil
}

// --- temporal decoding ---

// fraction describes how many sub-second digits to print for a value.
type fraction struct {
	digits int
	value  int64
}

func (t TimeValue) nanos() int64 {
	scale := min(t.Scale, 9)
	return int64(t.Increments) * pow10(9-int(scale))
}

func (t TimeValue) fraction() fraction {
	scale := min(int(t.Scale), 9)
	if scale == 0 {
		return fraction{}
	}
	return fraction{digits: scale, value: int64(t.Increments) % pow10(scale)}
}

func (v DateTimeValue) civil() civil.DateTime {
	millis := int64(v.SecondsFragments) * 1000 / 300
	return normalizeDateTime(dateFromDays(epochYear1900, int64(v.Days)), millis*int64(time.Millisecond))
}

func (v SmallDateTimeValue) civil() civil.DateTime {
	return normalizeDateTime(dateFromDays(epochYear1900, int64(v.Days)), int64(v.Minutes)*int64(time.Minute))
}

func (v DateTime2Value) civil() civil.DateTime {
	return normalizeDateTime(dateFromDays(epochYear1, int64(v.Date.Days)), v.Time.nanos())
}

// utc subtracts the stored offset from the decoded date-time.
func (v DateTimeOffsetValue) utc() civil.DateTime {
	dt := v.DateTime2
	nanos := dt.Time.nanos() - int64(v.OffsetMinutes)*int64(time.Minute)
	return normalizeDateTime(dateFromDays(epochYear1, int64(dt.Date.Days)), nanos)
}

func dateFromDays(epoch civil.Date, days int64) civil.Date {
	return epoch.AddDays(int(days))
}

// normalizeDateTime carries a time-of-day outside [0, 24h) into the date.
func normalizeDateTime(d civil.Date, nanos int64) civil.DateTime {
	if nanos < 0 || nanos >= nanosPerDay {
		days := nanos / nanosPerDay
		nanos %= nanosPerDay
		if nanos < 0 {
			nanos += nanosPerDay
			days--
		}
		d = d.AddDays(int(days))
	}
	return civil.DateTime{Date: d, Time: timeFromNanos(nanos)}
}

func timeFromNanos(nanos int64) civil.Time {
	nanos %= nanosPerDay
	return civil.Time{
		Hour:       int(nanos / int64(time.Hour)),
		Minute:     int(nanos / int64(time.Minute) % 60),
		Second:     int(nanos / int64(time.Second) % 60),
		Nanosecond: int(nanos % int64(time.Second)),
	}
}

func formatDate(d civil.Date) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// formatTime prints HH:MM:SS and, when non-zero, the sub-second digits.
func formatTime(t civil.Time, f fraction) string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if f.digits > 0 && f.value != 0 {
		s += fmt.Sprintf(".%0*d", f.digits, f.value)
	}
	return s
}

// formatDateTime prints millisecond precision, used by the legacy encodings.
func formatDateTime(dt civil.DateTime) string {
	ms := int64(dt.Time.Nanosecond) / int64(time.Millisecond)
	return formatDate(dt.Date) + " " + formatTime(dt.Time, fraction{digits: 3, value: ms})
}

func formatDateTime2(dt civil.DateTime, f fraction) string {
	if f.digits > 0 {
		f.value = int64(dt.Time.Nanosecond) / pow10(9-f.digits)
	}
	return formatDate(dt.Date) + " " + formatTime(dt.Time, f)
}

func pow10(n int) int64 {
	p := int64(1)
	for range n {
		p *= 10
	}
	return p
}
