package main

import (
	"fmt"
	"strings"
)

// Constraint is the single column-level constraint a source column can carry.
// Implementations: PrimaryKey, ForeignKey, Unique, Check, Default.
type Constraint interface {
	constraintKind() string
}

type PrimaryKey struct{}

type ForeignKey struct {
	ReferencedTable  string
	ReferencedColumn string
}

type Unique struct{}

type Check struct {
	Expression string
}

type Default struct {
	Expression string
}

func (PrimaryKey) constraintKind() string { return "PRIMARY KEY" }
func (ForeignKey) constraintKind() string { return "FOREIGN KEY" }
func (Unique) constraintKind() string     { return "UNIQUE" }
func (Check) constraintKind() string      { return "CHECK" }
func (Default) constraintKind() string    { return "DEFAULT" }

// parseConstraint parses the descriptor emitted by the source metadata query:
//
//	PRIMARY KEY
//	FOREIGN KEY,<referenced table>,<referenced column>
//	UNIQUE
//	CHECK <expression>
//	DEFAULT <expression>
//
// An empty or unrecognised descriptor yields no constraint.
func parseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, nil
	case strings.HasPrefix(s, "PRIMARY KEY"):
		return PrimaryKey{}, nil
	case strings.HasPrefix(s, "FOREIGN KEY"):
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed foreign key descriptor %q: want 3 fields, got %d", s, len(parts))
		}
		ref := ForeignKey{
			ReferencedTable:  strings.TrimSpace(parts[1]),
			ReferencedColumn: strings.TrimSpace(parts[2]),
		}
		if ref.ReferencedTable == "" || ref.ReferencedColumn == "" {
			return nil, fmt.Errorf("malformed foreign key descriptor %q: empty reference", s)
		}
		return ref, nil
	case s == "UNIQUE":
		return Unique{}, nil
	case strings.HasPrefix(s, "CHECK"):
		return Check{Expression: strings.TrimSpace(strings.TrimPrefix(s, "CHECK"))}, nil
	case strings.HasPrefix(s, "DEFAULT"):
		return Default{Expression: strings.TrimSpace(strings.TrimPrefix(s, "DEFAULT"))}, nil
	default:
		return nil, nil
	}
}
