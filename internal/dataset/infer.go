package dataset

import (
	"strconv"
	"strings"
)

// InferTypes infers a logical type per column from lexical row values.
// Empty cells are ignored; a column with no non-empty cells stays string.
// Preference order mirrors the sampling probe: integer, boolean, date,
// timestamp, float, then string.
func InferTypes(headers []string, rows [][]string) []Type {
	out := make([]Type, len(headers))
	for i := range out {
		out[i] = TypeString
	}

	for col := range headers {
		var seen bool
		allInt := true
		allFloat := true
		allBool := true
		allDate := true
		allTS := true

		for _, r := range rows {
			if col >= len(r) {
				continue
			}
			v := strings.TrimSpace(r[col])
			if v == "" {
				continue
			}
			seen = true

			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, ok := ParseNumber(v); !ok {
					allFloat = false
				}
			}
			if allBool {
				if _, ok := ParseBool(v); !ok {
					allBool = false
				}
			}
			if allDate {
				if !isDateOnly(v) {
					allDate = false
				}
			}
			if allTS {
				if _, ok := ParseTime(v); !ok {
					allTS = false
				}
			}
		}

		if !seen {
			continue
		}
		switch {
		case allInt:
			out[col] = TypeInteger
		case allBool:
			out[col] = TypeBool
		case allDate:
			out[col] = TypeDate
		case allTS:
			out[col] = TypeDateTime
		case allFloat:
			out[col] = TypeFloat
		}
	}

	return out
}

func isDateOnly(s string) bool {
	s = strings.TrimSpace(s)
	for _, lay := range dateLayouts {
		if len(s) == len(lay) {
			if _, ok := ParseTime(s); ok {
				return true
			}
		}
	}
	return false
}

// CoerceCell tags one lexical cell according to the column's logical type.
// A cell that does not parse as the declared type stays KindText so that
// datatype checks can still see the raw value.
func CoerceCell(raw string, t Type) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Null
	}
	switch t {
	case TypeInteger, TypeFloat:
		if f, ok := ParseNumber(trimmed); ok {
			return Number(f)
		}
	case TypeBool:
		if b, ok := ParseBool(trimmed); ok {
			return Boolean(b)
		}
	case TypeDate, TypeDateTime:
		if ts, ok := ParseTime(trimmed); ok {
			return Timestamp(ts)
		}
	case TypeMixed:
		if f, ok := ParseNumber(trimmed); ok {
			return Number(f)
		}
		if ts, ok := ParseTime(trimmed); ok {
			return Timestamp(ts)
		}
	}
	return Text(raw)
}

// FromStringRows builds a typed dataset from lexical rows, inferring each
// column's logical type from the data. This is the main entry point for the
// file connectors.
func FromStringRows(headers []string, rows [][]string) (*Dataset, error) {
	types := InferTypes(headers, rows)
	cols := make([]Column, len(headers))
	for i, h := range headers {
		cols[i] = Column{Name: h, Type: types[i]}
	}
	d, err := New(cols)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		row := make([]Value, len(cols))
		for c := range cols {
			if c < len(r) {
				row[c] = CoerceCell(r[c], cols[c].Type)
			} else {
				row[c] = Null
			}
		}
		if err := d.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// FromRecords builds a dataset from row maps, keeping the supplied column
// order. Missing keys become nulls; cell kinds follow the Go value types.
func FromRecords(columns []string, records []map[string]any) (*Dataset, error) {
	cols := make([]Column, len(columns))
	for i, name := range columns {
		cols[i] = Column{Name: name, Type: TypeMixed}
	}
	d, err := New(cols)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := make([]Value, len(cols))
		for c, col := range cols {
			v, ok := rec[col.Name]
			if !ok {
				row[c] = Null
				continue
			}
			row[c] = FromAny(v)
		}
		if err := d.AppendRow(row); err != nil {
			return nil, err
		}
	}
	d.refineTypes()
	return d, nil
}

// FromValues builds a dataset from positional scan rows, keeping the
// supplied column order. This is the entry point for database connectors.
func FromValues(columns []string, rows [][]any) (*Dataset, error) {
	cols := make([]Column, len(columns))
	for i, name := range columns {
		cols[i] = Column{Name: name, Type: TypeMixed}
	}
	d, err := New(cols)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		row := make([]Value, len(cols))
		for c := range cols {
			if c < len(r) {
				row[c] = FromAny(r[c])
			} else {
				row[c] = Null
			}
		}
		if err := d.AppendRow(row); err != nil {
			return nil, err
		}
	}
	d.refineTypes()
	return d, nil
}

// refineTypes narrows TypeMixed columns whose cells all carry one kind.
func (d *Dataset) refineTypes() {
	for ci := range d.cols {
		if d.cols[ci].Type != TypeMixed {
			continue
		}
		kind := KindNull
		uniform := true
		for _, row := range d.rows {
			v := row[ci]
			if v.Kind == KindNull {
				continue
			}
			if kind == KindNull {
				kind = v.Kind
				continue
			}
			if v.Kind != kind {
				uniform = false
				break
			}
		}
		if !uniform {
			continue
		}
		switch kind {
		case KindNumber:
			d.cols[ci].Type = TypeFloat
		case KindText:
			d.cols[ci].Type = TypeString
		case KindBool:
			d.cols[ci].Type = TypeBool
		case KindTime:
			d.cols[ci].Type = TypeDateTime
		}
	}
}
