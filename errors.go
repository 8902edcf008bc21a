package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrRowTooLarge is returned when a single row cannot fit in an empty batch.
var ErrRowTooLarge = errors.New("row exceeds max_packet_bytes on its own")

// ConnectionError is fatal: the run cannot start without both engines.
type ConnectionError struct {
	Engine string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Engine, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PacketSizeExceededError is raised during preflight only.
type PacketSizeExceededError struct {
	Configured int64
	Allowed    int64
}

func (e *PacketSizeExceededError) Error() string {
	return fmt.Sprintf("configured max_packet_bytes %d (%s) exceeds destination max allowed packet %d (%s)",
		e.Configured, humanize.IBytes(uint64(e.Configured)), e.Allowed, humanize.IBytes(uint64(e.Allowed)))
}

type SchemaFetchError struct {
	Table string
	Err   error
}

func (e *SchemaFetchError) Error() string {
	return fmt.Sprintf("fetch schema of %s: %v", e.Table, e.Err)
}

func (e *SchemaFetchError) Unwrap() error { return e.Err }

type MappingNotFoundError struct {
	TypeName string
}

func (e *MappingNotFoundError) Error() string {
	return fmt.Sprintf("mapping not found for data type %q", e.TypeName)
}

// TableAlreadyPopulatedError marks a table whose data load was not performed
// because the destination already holds rows.
type TableAlreadyPopulatedError struct {
	Table string
}

func (e *TableAlreadyPopulatedError) Error() string {
	return fmt.Sprintf("rows already exist in table %s, data load skipped", e.Table)
}

type BatchExecutionError struct {
	Table      string
	BatchBytes int
	Rows       int
	Err        error
}

func (e *BatchExecutionError) Error() string {
	return fmt.Sprintf("execute batch for %s (%d rows, %s): %v",
		e.Table, e.Rows, humanize.IBytes(uint64(e.BatchBytes)), e.Err)
}

func (e *BatchExecutionError) Unwrap() error { return e.Err }

type ConstraintCreationError struct {
	Table string
	Err   error
}

func (e *ConstraintCreationError) Error() string {
	return fmt.Sprintf("create constraints for %s: %v", e.Table, e.Err)
}

func (e *ConstraintCreationError) Unwrap() error { return e.Err }

// UnsupportedValueError is returned by the codec for source values it cannot
// render. It fails the owning table only.
type UnsupportedValueError struct {
	TypeName string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("unsupported source value type %q", e.TypeName)
}

// TableError tags a per-table failure with the source table name.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("migrate table %s: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// RunError summarizes a run that finished with per-table failures.
type RunError struct {
	Failed int
	Total  int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%d of %d table(s) failed", e.Failed, e.Total)
}

// renderErrorChain formats err and every wrapped cause on its own line, each
// cause indented under its parent. Causes whose text is already a suffix of
// the parent message are trimmed out of the parent line.
func renderErrorChain(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	for depth := 0; err != nil; depth++ {
		msg := err.Error()
		next := errors.Unwrap(err)
		if next != nil {
			msg = strings.TrimSuffix(msg, ": "+next.Error())
		}
		if depth == 0 {
			lines = append(lines, msg)
		} else {
			lines = append(lines, strings.Repeat("   ", depth-1)+"  └> "+msg)
		}
		err = next
	}
	return strings.Join(lines, "\n")
}
