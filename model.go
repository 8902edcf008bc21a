package main

import (
	"fmt"
	"time"
)

// ColumnSchema describes one column as reported by the source, or as mapped
// for the destination.
type ColumnSchema struct {
	ColumnName             string
	DataType               string
	CharacterMaximumLength *int64 // -1 means MAX on the source side
	NumericPrecision       *int64
	NumericScale           *int64
	IsNullable             bool
	Constraint             Constraint // nil when the column has none
}

// ResetAction controls what happens to destination tables that already exist.
type ResetAction string

const (
	ResetDrop     ResetAction = "drop"
	ResetTruncate ResetAction = "truncate"
	ResetNone     ResetAction = "none"
)

func parseResetAction(s string) (ResetAction, error) {
	switch a := ResetAction(s); a {
	case ResetDrop, ResetTruncate, ResetNone:
		return a, nil
	default:
		return "", fmt.Errorf("reset_action must be one of: drop, truncate, none")
	}
}

// MigrationOptions are the knobs the coordinator and table migrators run with.
type MigrationOptions struct {
	ResetAction            ResetAction
	CreateConstraints      bool
	SnakeCaseIdentifiers   bool
	MaxConcurrentTables    int
	MaxPacketBytes         int64
	WhitelistedTables      []string
	OnPopulatedTable       string // skip|error
	NumericFractionPadding string // right|left
	BatchTimeout           time.Duration
}

func (o MigrationOptions) whitelisted(table string) bool {
	return len(o.WhitelistedTables) == 0 || containsFold(o.WhitelistedTables, table)
}

// outputName returns the destination name for a source identifier.
func (o MigrationOptions) outputName(name string) string {
	if o.SnakeCaseIdentifiers {
		return toSnakeCase(name)
	}
	return name
}

// TableOutcome distinguishes a copied table from one whose load was skipped.
type TableOutcome int

const (
	OutcomeCopied TableOutcome = iota
	OutcomeSkippedPopulated
)

func (o TableOutcome) String() string {
	switch o {
	case OutcomeCopied:
		return "copied"
	case OutcomeSkippedPopulated:
		return "skipped (already populated)"
	default:
		return "unknown"
	}
}

// MigrationResult is produced once per successfully processed table.
type MigrationResult struct {
	SourceTable  string
	OutputTable  string
	MappedSchema []ColumnSchema
	Created      bool // true iff this run created the destination table
	Outcome      TableOutcome
	Rows         int64
	Batches      int
	Bytes        int64
	Elapsed      time.Duration
}
