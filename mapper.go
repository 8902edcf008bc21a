package main

// maxMappedCharLength is both the replacement for MAX (-1) lengths and the
// upper bound of lengths kept from the source.
const maxMappedCharLength = 65535

// mapSchema translates source columns into destination columns using the
// mapping table. Output has the same length and order as the input.
func mapSchema(columns []ColumnSchema, mappings Mappings, snakeCase bool) ([]ColumnSchema, error) {
	mapped := make([]ColumnSchema, 0, len(columns))
	for _, col := range columns {
		tm, err := mappings.Lookup(col.DataType)
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, mapColumn(col, tm, snakeCase))
	}
	return mapped, nil
}

func mapColumn(col ColumnSchema, tm TypeMapping, snakeCase bool) ColumnSchema {
	out := ColumnSchema{
		ColumnName: col.ColumnName,
		DataType:   tm.ToType,
		IsNullable: col.IsNullable,
		Constraint: mapConstraint(col.Constraint, snakeCase),
	}
	if snakeCase {
		out.ColumnName = toSnakeCase(col.ColumnName)
	}
	if !tm.TypeParameters {
		return out
	}

	out.CharacterMaximumLength = mapCharLength(col.CharacterMaximumLength)
	if out.CharacterMaximumLength == nil {
		out.CharacterMaximumLength = copyInt(tm.MaxCharactersLength)
	}

	out.NumericPrecision = copyInt(col.NumericPrecision)
	if out.NumericPrecision == nil {
		out.NumericPrecision = copyInt(tm.NumericPrecision)
	}

	switch {
	case col.NumericScale != nil && *col.NumericScale == 0:
		// zero-scale columns carry no explicit scale
	case col.NumericScale != nil:
		out.NumericScale = copyInt(col.NumericScale)
	default:
		out.NumericScale = copyInt(tm.NumericScale)
	}
	return out
}

func mapCharLength(n *int64) *int64 {
	switch {
	case n == nil:
		return nil
	case *n == -1:
		return intPtr(maxMappedCharLength)
	case *n >= 1 && *n <= maxMappedCharLength:
		return intPtr(*n)
	default:
		return nil
	}
}

func mapConstraint(c Constraint, snakeCase bool) Constraint {
	fk, ok := c.(ForeignKey)
	if !ok || !snakeCase {
		return c
	}
	return ForeignKey{
		ReferencedTable:  toSnakeCase(fk.ReferencedTable),
		ReferencedColumn: toSnakeCase(fk.ReferencedColumn),
	}
}

func intPtr(v int64) *int64 { return &v }

func copyInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}
