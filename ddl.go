package main

import (
	"fmt"
	"strings"
)

// createTableSQL produces a bare CREATE TABLE statement. Constraints are
// added later by the constraints phase.
func createTableSQL(d Dialect, table string, cols []ColumnSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", d.QuoteIdentifier(table))
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", d.QuoteIdentifier(col.ColumnName), columnType(col))
		if col.IsNullable {
			b.WriteString(" NULL")
		} else {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

// columnType renders the mapped type with its length or precision/scale.
func columnType(col ColumnSchema) string {
	switch {
	case col.CharacterMaximumLength != nil:
		return fmt.Sprintf("%s(%d)", col.DataType, *col.CharacterMaximumLength)
	case col.NumericPrecision != nil && col.NumericScale != nil:
		return fmt.Sprintf("%s(%d, %d)", col.DataType, *col.NumericPrecision, *col.NumericScale)
	case col.NumericPrecision != nil:
		return fmt.Sprintf("%s(%d)", col.DataType, *col.NumericPrecision)
	default:
		return col.DataType
	}
}

// insertPreamble builds the fixed "INSERT INTO t (cols) VALUES " prefix
// shared by every batch of a table.
func insertPreamble(d Dialect, table string, cols []ColumnSchema) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES ", d.QuoteIdentifier(table), quotedColumnList(d, cols))
}

// constraintsSQL builds one ALTER TABLE adding every column-level constraint
// of the table. Primary key columns are grouped into a single clause.
// It returns false when the table has no constraints.
func constraintsSQL(d Dialect, table string, cols []ColumnSchema) (string, bool) {
	var pkCols []string
	var clauses []string
	for _, col := range cols {
		name := d.QuoteIdentifier(col.ColumnName)
		switch c := col.Constraint.(type) {
		case PrimaryKey:
			pkCols = append(pkCols, name)
		case ForeignKey:
			clauses = append(clauses, d.ForeignKeyClause(col.ColumnName, c.ReferencedTable, c.ReferencedColumn))
		case Unique:
			clauses = append(clauses, fmt.Sprintf("ADD UNIQUE (%s)", name))
		case Check:
			clauses = append(clauses, fmt.Sprintf("ADD CHECK (%s)", d.TranslateExpression(c.Expression)))
		case Default:
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", name, d.TranslateExpression(c.Expression)))
		}
	}
	if len(pkCols) > 0 {
		clauses = append([]string{fmt.Sprintf("ADD PRIMARY KEY (%s)", strings.Join(pkCols, ", "))}, clauses...)
	}
	if len(clauses) == 0 {
		return "", false
	}
	return fmt.Sprintf("ALTER TABLE %s %s", d.QuoteIdentifier(table), strings.Join(clauses, ", ")), true
}

// quotedColumnList joins column names with proper quoting.
func quotedColumnList(d Dialect, cols []ColumnSchema) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c.ColumnName)
	}
	return strings.Join(quoted, ", ")
}
