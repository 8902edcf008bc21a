package main

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect captures the SQL differences between destination engines.
type Dialect interface {
	// QuoteIdentifier quotes a destination identifier.
	QuoteIdentifier(name string) string

	// BinaryLiteral renders hex digits as a quoted binary literal.
	BinaryLiteral(hexDigits string) string

	// ResetStatements returns the statements that drop or empty tables.
	ResetStatements(tables []string, action ResetAction) []string

	// DisableForeignKeys and EnableForeignKeys bracket a transaction that must
	// not be blocked by foreign key enforcement. An empty string means no
	// statement is needed.
	DisableForeignKeys() string
	EnableForeignKeys() string

	// ForeignKeyClause renders an ALTER TABLE clause adding a foreign key.
	ForeignKeyClause(column, refTable, refColumn string) string

	// TranslateExpression rewrites a source CHECK/DEFAULT expression.
	TranslateExpression(expr string) string
}

// bracketIdent matches SQL Server style [identifier] quoting.
var bracketIdent = regexp.MustCompile(`\[([^\]]+)\]`)

func translateBrackets(d Dialect, expr string) string {
	return bracketIdent.ReplaceAllStringFunc(expr, func(m string) string {
		return d.QuoteIdentifier(m[1 : len(m)-1])
	})
}

// --- MySQL ---

type mysqlDialect struct{}

func (mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) BinaryLiteral(hexDigits string) string {
	return "X'" + hexDigits + "'"
}

func (d mysqlDialect) ResetStatements(tables []string, action ResetAction) []string {
	verb := resetVerb(action)
	if verb == "" {
		return nil
	}
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, verb+" "+d.QuoteIdentifier(t))
	}
	return stmts
}

func (mysqlDialect) DisableForeignKeys() string { return "SET FOREIGN_KEY_CHECKS=0" }
func (mysqlDialect) EnableForeignKeys() string  { return "SET FOREIGN_KEY_CHECKS=1" }

func (d mysqlDialect) ForeignKeyClause(column, refTable, refColumn string) string {
	return fmt.Sprintf("ADD FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE CASCADE",
		d.QuoteIdentifier(column), d.QuoteIdentifier(refTable), d.QuoteIdentifier(refColumn))
}

func (d mysqlDialect) TranslateExpression(expr string) string {
	return translateBrackets(d, expr)
}

// --- PostgreSQL ---

// pgReservedWords are PostgreSQL reserved words that must be quoted as identifiers.
var pgReservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "authorization": true, "between": true,
	"binary": true, "both": true, "case": true, "cast": true, "check": true,
	"collate": true, "column": true, "constraint": true, "create": true, "cross": true,
	"current_date": true, "current_role": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true, "deferrable": true,
	"desc": true, "distinct": true, "do": true, "else": true, "end": true, "except": true,
	"false": true, "fetch": true, "for": true, "foreign": true, "freeze": true,
	"from": true, "full": true, "grant": true, "group": true, "having": true,
	"ilike": true, "in": true, "initially": true, "inner": true, "intersect": true,
	"into": true, "is": true, "isnull": true, "join": true, "lateral": true,
	"leading": true, "left": true, "like": true, "limit": true, "localtime": true,
	"localtimestamp": true, "natural": true, "not": true, "notnull": true, "null": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true, "outer": true,
	"overlaps": true, "placing": true, "primary": true, "references": true,
	"returning": true, "right": true, "select": true, "session_user": true,
	"similar": true, "some": true, "symmetric": true, "table": true, "then": true,
	"to": true, "trailing": true, "true": true, "union": true, "unique": true,
	"user": true, "using": true, "variadic": true, "verbose": true, "when": true,
	"where": true, "window": true, "with": true,
}

type postgresDialect struct{}

// pgNeedsQuoting reports whether a PG identifier needs quoting beyond
// reserved-word checks (e.g. contains hyphens, spaces, uppercase, etc.).
func pgNeedsQuoting(name string) bool {
	if name == "" {
		return true
	}
	for i, r := range name {
		if r >= 'a' && r <= 'z' || r == '_' {
			continue
		}
		if i > 0 && (r >= '0' && r <= '9' || r == '$') {
			continue
		}
		return true
	}
	return false
}

// QuoteIdentifier returns a PG-safe identifier, quoting reserved words and
// names that contain characters invalid in unquoted identifiers.
func (postgresDialect) QuoteIdentifier(name string) string {
	if pgReservedWords[name] || pgNeedsQuoting(name) {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

func (postgresDialect) BinaryLiteral(hexDigits string) string {
	return `'\x` + hexDigits + "'"
}

// ResetStatements names every table in one statement, so references among
// them are accepted while a reference from any other table fails the reset.
func (d postgresDialect) ResetStatements(tables []string, action ResetAction) []string {
	verb := resetVerb(action)
	if verb == "" || len(tables) == 0 {
		return nil
	}
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = d.QuoteIdentifier(t)
	}
	return []string{verb + " " + strings.Join(quoted, ", ")}
}

// Foreign keys are created DEFERRABLE, so deferring them covers the
// transaction without touching session-wide settings.
func (postgresDialect) DisableForeignKeys() string { return "SET CONSTRAINTS ALL DEFERRED" }
func (postgresDialect) EnableForeignKeys() string  { return "" }

func (d postgresDialect) ForeignKeyClause(column, refTable, refColumn string) string {
	return fmt.Sprintf("ADD FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE CASCADE DEFERRABLE INITIALLY IMMEDIATE",
		d.QuoteIdentifier(column), d.QuoteIdentifier(refTable), d.QuoteIdentifier(refColumn))
}

func (d postgresDialect) TranslateExpression(expr string) string {
	return translateBrackets(d, expr)
}

func resetVerb(action ResetAction) string {
	switch action {
	case ResetDrop:
		return "DROP TABLE"
	case ResetTruncate:
		return "TRUNCATE TABLE"
	default:
		return ""
	}
}
