// Package reconcile matches rows across any number of datasets by key and
// reports duplicates, unmatched rows, and per-column value differences. The
// first source in caller order is the baseline for aggregation variance.
package reconcile

import (
	"fmt"
	"strings"

	"qc/internal/dataset"
)

const (
	diffRowCap   = 100
	dupKeyCap    = 100
	uniqueRowCap = 100
)

// Source is one named participant in a reconciliation run.
type Source struct {
	Name string
	Data *dataset.Dataset
}

// Options configures a reconciliation run. Zero value compares all shared
// non-key columns with exact matching.
type Options struct {
	KeyColumns   []string
	ValueColumns []string

	Numeric Tolerance
	Date    DateTolerance

	Transforms       []Transform
	IgnoreCase       bool
	IgnoreWhitespace bool

	// NullEqualsNull defaults to true when nil.
	NullEqualsNull *bool

	CheckDuplicates  bool
	CheckUnique      bool
	CheckDifferences bool

	Aggregation *AggregationSpec
}

func (o *Options) nullEqualsNull() bool {
	if o.NullEqualsNull == nil {
		return true
	}
	return *o.NullEqualsNull
}

// Result is the full reconciliation report.
type Result struct {
	Sources     []string                 `json:"sources"`
	KeyColumns  []string                 `json:"key_columns"`
	TotalKeys   int                      `json:"total_keys"`
	Matched     int                      `json:"matched_keys"`
	Duplicates  *DuplicateReport         `json:"duplicates,omitempty"`
	Unique      map[string]*UniqueReport `json:"unique,omitempty"`
	NotMatched  *DifferenceReport        `json:"not_matched,omitempty"`
	Aggregation *AggregationReport       `json:"aggregation,omitempty"`
}

// DuplicateReport lists keys that occur more than once within a source.
type DuplicateReport struct {
	Count int              `json:"count"`
	Rows  []map[string]any `json:"rows"`
}

// UniqueReport lists rows whose key appears in exactly one source.
type UniqueReport struct {
	Count int              `json:"count"`
	Rows  []map[string]any `json:"rows"`
}

// DifferenceReport lists keys present in several sources whose compared
// values disagree.
type DifferenceReport struct {
	Count             int              `json:"count"`
	ColumnDifferences map[string]int   `json:"column_differences"`
	Rows              []map[string]any `json:"rows"`
}

// keyEntry records where one key occurs, per source, in encounter order.
type keyEntry struct {
	rows map[string][]int
}

// Reconcile runs the full N-way reconciliation. Sources must share the key
// columns; value columns default to the columns shared by every source minus
// the keys.
func Reconcile(sources []Source, opts Options) (*Result, error) {
	if len(sources) < 2 {
		return nil, fmt.Errorf("reconcile: need at least 2 sources, got %d", len(sources))
	}
	if len(opts.KeyColumns) == 0 {
		return nil, fmt.Errorf("reconcile: key_columns is required")
	}
	if err := validateTransforms(opts.Transforms); err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(sources))
	for _, s := range sources {
		if names[s.Name] {
			return nil, fmt.Errorf("reconcile: duplicate source name %q", s.Name)
		}
		names[s.Name] = true
		if s.Data == nil {
			return nil, fmt.Errorf("reconcile: source %q has no data", s.Name)
		}
		if missing := s.Data.MissingColumns(opts.KeyColumns); len(missing) > 0 {
			return nil, fmt.Errorf("reconcile: source %q missing key columns: %s", s.Name, strings.Join(missing, ", "))
		}
	}

	valueCols, err := resolveValueColumns(sources, opts)
	if err != nil {
		return nil, err
	}

	index, order := buildKeyIndex(sources, opts)

	res := &Result{
		Sources:    sourceNames(sources),
		KeyColumns: opts.KeyColumns,
		TotalKeys:  len(order),
	}

	policy := comparePolicy{
		numeric:        opts.Numeric,
		date:           opts.Date,
		ignoreCase:     opts.IgnoreCase,
		ignoreSpace:    opts.IgnoreWhitespace,
		nullEqualsNull: opts.nullEqualsNull(),
	}

	if opts.CheckDuplicates {
		res.Duplicates = findDuplicates(sources, index, order)
	}
	if opts.CheckUnique {
		res.Unique = findUnique(sources, index, order)
	}
	if opts.CheckDifferences {
		res.NotMatched, res.Matched = findDifferences(sources, index, order, valueCols, policy)
	}
	if opts.Aggregation != nil {
		agg, err := runAggregation(sources, *opts.Aggregation)
		if err != nil {
			return nil, err
		}
		res.Aggregation = agg
	}
	return res, nil
}

func sourceNames(sources []Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}
	return names
}

// resolveValueColumns returns the compare set: the configured columns,
// validated against every source, or the shared non-key columns.
func resolveValueColumns(sources []Source, opts Options) ([]string, error) {
	keySet := make(map[string]bool, len(opts.KeyColumns))
	for _, k := range opts.KeyColumns {
		keySet[k] = true
	}

	if len(opts.ValueColumns) > 0 {
		for _, s := range sources {
			if missing := s.Data.MissingColumns(opts.ValueColumns); len(missing) > 0 {
				return nil, fmt.Errorf("reconcile: source %q missing value columns: %s", s.Name, strings.Join(missing, ", "))
			}
		}
		return opts.ValueColumns, nil
	}

	var shared []string
	for _, name := range sources[0].Data.ColumnNames() {
		if keySet[name] {
			continue
		}
		inAll := true
		for _, s := range sources[1:] {
			if !s.Data.HasColumn(name) {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, name)
		}
	}
	return shared, nil
}

// columnIndexes resolves already-validated column names to positions.
func columnIndexes(ds *dataset.Dataset, names []string) []int {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = ds.ColumnIndex(n)
	}
	return idx
}

// buildKeyIndex walks every source once and records, per composite key, the
// row positions per source. Keys keep first-encounter order across the
// caller's source order.
func buildKeyIndex(sources []Source, opts Options) (map[string]*keyEntry, []string) {
	index := make(map[string]*keyEntry)
	var order []string
	for _, s := range sources {
		keyIdx := columnIndexes(s.Data, opts.KeyColumns)
		for r := 0; r < s.Data.NumRows(); r++ {
			k := compositeKey(s.Data, r, keyIdx, opts)
			e, ok := index[k]
			if !ok {
				e = &keyEntry{rows: make(map[string][]int)}
				index[k] = e
				order = append(order, k)
			}
			e.rows[s.Name] = append(e.rows[s.Name], r)
		}
	}
	return index, order
}

// compositeKey joins the transformed key cells with an unprintable separator
// so multi-column keys cannot collide on embedded delimiters.
func compositeKey(ds *dataset.Dataset, row int, keyIdx []int, opts Options) string {
	parts := make([]string, len(keyIdx))
	for i, ci := range keyIdx {
		v := ds.Cell(row, ci)
		// Transforms were validated up front; errors cannot occur here.
		s, _ := applyTransforms(v.String(), opts.Transforms)
		if opts.IgnoreCase {
			s = strings.ToLower(s)
		}
		if opts.IgnoreWhitespace {
			s = strings.TrimSpace(s)
		}
		if v.IsNull() {
			s = "\x00"
		}
		parts[i] = s
	}
	return strings.Join(parts, "\x1f")
}

// findDuplicates reports keys occurring more than once within a source. The
// row sample caps at dupKeyCap whole key groups; a group is never truncated
// mid-key.
func findDuplicates(sources []Source, index map[string]*keyEntry, order []string) *DuplicateReport {
	rep := &DuplicateReport{Rows: []map[string]any{}}
	seen := 0
	for _, k := range order {
		e := index[k]
		for _, s := range sources {
			rows := e.rows[s.Name]
			if len(rows) < 2 {
				continue
			}
			rep.Count += len(rows)
			if seen >= dupKeyCap {
				continue
			}
			seen++
			for _, r := range rows {
				rec := s.Data.Record(r)
				rec["_source"] = s.Name
				rep.Rows = append(rep.Rows, rec)
			}
		}
	}
	return rep
}

func findUnique(sources []Source, index map[string]*keyEntry, order []string) map[string]*UniqueReport {
	out := make(map[string]*UniqueReport, len(sources))
	for _, s := range sources {
		out[s.Name] = &UniqueReport{Rows: []map[string]any{}}
	}
	for _, k := range order {
		e := index[k]
		if len(e.rows) != 1 {
			continue
		}
		for name, rows := range e.rows {
			rep := out[name]
			rep.Count += len(rows)
			src := sourceByName(sources, name)
			for _, r := range rows {
				if len(rep.Rows) >= uniqueRowCap {
					break
				}
				rec := src.Data.Record(r)
				rec["_source"] = name
				rep.Rows = append(rep.Rows, rec)
			}
		}
	}
	return out
}

func sourceByName(sources []Source, name string) Source {
	for _, s := range sources {
		if s.Name == name {
			return s
		}
	}
	return Source{}
}

// findDifferences compares the value columns for every key present in two or
// more sources. The baseline for a key is the first source, in caller order,
// that holds it; every other holder is compared against that row.
func findDifferences(sources []Source, index map[string]*keyEntry, order []string, valueCols []string, policy comparePolicy) (*DifferenceReport, int) {
	rep := &DifferenceReport{
		ColumnDifferences: make(map[string]int),
		Rows:              []map[string]any{},
	}
	valIdx := make(map[string][]int, len(sources))
	for _, s := range sources {
		valIdx[s.Name] = columnIndexes(s.Data, valueCols)
	}
	matched := 0
	for _, k := range order {
		e := index[k]
		if len(e.rows) < 2 {
			continue
		}

		var base Source
		baseRow := -1
		for _, s := range sources {
			if rows, ok := e.rows[s.Name]; ok {
				base, baseRow = s, rows[0]
				break
			}
		}

		keyDiffers := false
		var diffCols []map[string]any
		for _, s := range sources {
			if s.Name == base.Name {
				continue
			}
			rows, ok := e.rows[s.Name]
			if !ok {
				continue
			}
			for vi, col := range valueCols {
				av := base.Data.Cell(baseRow, valIdx[base.Name][vi])
				bv := s.Data.Cell(rows[0], valIdx[s.Name][vi])
				status, detail := compareValues(av, bv, policy)
				if status == StatusMatch {
					continue
				}
				keyDiffers = true
				rep.ColumnDifferences[col]++
				if len(diffCols) < diffRowCap {
					diffCols = append(diffCols, map[string]any{
						"column":  col,
						"status":  status,
						"detail":  detail,
						base.Name: av.Export(),
						s.Name:    bv.Export(),
					})
				}
			}
		}

		if keyDiffers {
			rep.Count++
			if len(rep.Rows) < diffRowCap {
				rec := base.Data.Record(baseRow)
				rec["_source"] = base.Name
				rec["_differences"] = diffCols
				rep.Rows = append(rep.Rows, rec)
			}
		} else {
			matched++
		}
	}
	return rep, matched
}
