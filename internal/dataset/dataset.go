// Package dataset implements the in-memory tabular table every QC component
// operates on: named, typed columns over rows of tagged scalar values.
//
// Design constraints:
//   - A dataset is owned by the caller that loaded it. Rules and comparators
//     only read it; anything that needs to tag rows copies first.
//   - Cell tags (Kind) are assigned once at ingestion so comparison code can
//     branch exhaustively on tag pairs.
package dataset

import (
	"fmt"
	"math"
	"sort"
)

// Type is the declared logical type of a column.
type Type string

const (
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeString   Type = "string"
	TypeBool     Type = "boolean"
	TypeDate     Type = "date"
	TypeDateTime Type = "datetime"
	TypeMixed    Type = "mixed"
)

// Column describes one named column.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Dataset is an ordered sequence of named columns with row-major cell
// storage. Row order is insertion order.
type Dataset struct {
	cols  []Column
	index map[string]int
	rows  [][]Value
}

// New creates an empty dataset with the given columns.
//
// Errors:
//   - Duplicate column names are rejected; stable column identifiers are a
//     contract the connectors must honor.
func New(cols []Column) (*Dataset, error) {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("dataset: column %d has empty name", i)
		}
		if _, dup := idx[c.Name]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", c.Name)
		}
		idx[c.Name] = i
	}
	return &Dataset{
		cols:  append([]Column(nil), cols...),
		index: idx,
	}, nil
}

// AppendRow appends one row. The row length must match the column count.
func (d *Dataset) AppendRow(row []Value) error {
	if len(row) != len(d.cols) {
		return fmt.Errorf("dataset: row has %d values, want %d", len(row), len(d.cols))
	}
	d.rows = append(d.rows, append([]Value(nil), row...))
	return nil
}

func (d *Dataset) NumRows() int { return len(d.rows) }
func (d *Dataset) NumCols() int { return len(d.cols) }

// Columns returns a copy of the column descriptors.
func (d *Dataset) Columns() []Column { return append([]Column(nil), d.cols...) }

// ColumnNames returns the column names in declaration order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.cols))
	for i, c := range d.cols {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool { return d.ColumnIndex(name) >= 0 }

// MissingColumns returns the subset of names absent from the dataset,
// preserving input order.
func (d *Dataset) MissingColumns(names []string) []string {
	var missing []string
	for _, n := range names {
		if !d.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Row returns the i-th row. The slice is shared; callers must not mutate it.
func (d *Dataset) Row(i int) []Value { return d.rows[i] }

// Cell returns the value at (row, column index).
func (d *Dataset) Cell(row, col int) Value { return d.rows[row][col] }

// Record converts the i-th row to a plain column-name -> exported-value map.
func (d *Dataset) Record(i int) map[string]any {
	rec := make(map[string]any, len(d.cols))
	for c, col := range d.cols {
		rec[col.Name] = d.rows[i][c].Export()
	}
	return rec
}

// Records converts all rows to plain maps. Intended for previews and export,
// not for hot paths.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, d.NumRows())
	for i := range d.rows {
		out[i] = d.Record(i)
	}
	return out
}

// NumericColumn extracts the named column as float64s with a validity mask.
// Non-numeric and null cells are marked invalid.
func (d *Dataset) NumericColumn(name string) (vals []float64, valid []bool, err error) {
	ci := d.ColumnIndex(name)
	if ci < 0 {
		return nil, nil, fmt.Errorf("dataset: no column %q", name)
	}
	vals = make([]float64, len(d.rows))
	valid = make([]bool, len(d.rows))
	for i, row := range d.rows {
		if f, ok := row[ci].AsNumber(); ok {
			vals[i] = f
			valid[i] = true
		}
	}
	return vals, valid, nil
}

// Clone returns a deep copy. Callers that need to tag rows (for example a
// provenance column) clone first; the source dataset is never mutated.
func (d *Dataset) Clone() *Dataset {
	cp, _ := New(d.cols)
	cp.rows = make([][]Value, len(d.rows))
	for i, r := range d.rows {
		cp.rows[i] = append([]Value(nil), r...)
	}
	return cp
}

// WithColumn returns a copy of the dataset extended with one extra column
// whose cell for every row is produced by fill.
func (d *Dataset) WithColumn(col Column, fill func(row int) Value) (*Dataset, error) {
	cols := append(d.Columns(), col)
	out, err := New(cols)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]Value, len(d.rows))
	for i, r := range d.rows {
		nr := make([]Value, len(r)+1)
		copy(nr, r)
		nr[len(r)] = fill(i)
		out.rows[i] = nr
	}
	return out, nil
}

// Select returns a copy holding only the rows whose indices are listed,
// in the given order.
func (d *Dataset) Select(rows []int) *Dataset {
	cp, _ := New(d.cols)
	cp.rows = make([][]Value, 0, len(rows))
	for _, i := range rows {
		cp.rows = append(cp.rows, append([]Value(nil), d.rows[i]...))
	}
	return cp
}

// Stats holds basic numeric summary statistics for one column.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Sum    float64
	Median float64
}

// NumericStats computes summary statistics over the valid numeric cells of
// the named column. ok is false when the column has no numeric values.
func (d *Dataset) NumericStats(name string) (Stats, bool) {
	vals, valid, err := d.NumericColumn(name)
	if err != nil {
		return Stats{}, false
	}
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	kept := make([]float64, 0, len(vals))
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		kept = append(kept, v)
		s.Count++
		s.Sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	if s.Count == 0 {
		return Stats{}, false
	}
	s.Mean = s.Sum / float64(s.Count)
	sort.Float64s(kept)
	mid := len(kept) / 2
	if len(kept)%2 == 1 {
		s.Median = kept[mid]
	} else {
		s.Median = (kept[mid-1] + kept[mid]) / 2
	}
	return s, true
}
