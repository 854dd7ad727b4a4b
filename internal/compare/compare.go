// Package compare implements the pairwise dataset comparator: schema, shape
// and row-level diff between exactly two datasets, using positional or
// key-based row matching.
package compare

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"qc/internal/dataset"
)

const (
	perColumnCap = 100
	totalDiffCap = 500
)

// Options control a pairwise comparison.
type Options struct {
	KeyColumns       []string `json:"key_columns,omitempty"`
	CompareColumns   []string `json:"compare_columns,omitempty"`
	Tolerance        float64  `json:"tolerance,omitempty"`
	IgnoreCase       bool     `json:"ignore_case,omitempty"`
	IgnoreWhitespace bool     `json:"ignore_whitespace,omitempty"`
}

// Result is the outcome of one pairwise comparison.
// Match is true iff schema match, shape match, and zero row differences.
type Result struct {
	Match             bool           `json:"match"`
	Message           string         `json:"message"`
	Summary           Summary        `json:"summary"`
	ColumnDifferences SchemaDiff     `json:"column_differences"`
	RowDifferences    map[string]any `json:"row_differences"`
	Statistics        map[string]any `json:"statistics"`
}

type Summary struct {
	SchemaMatch      bool `json:"schema_match"`
	ShapeMatch       bool `json:"shape_match"`
	RowsCompared     int  `json:"rows_compared"`
	TotalDifferences int  `json:"total_differences"`
}

type SchemaDiff struct {
	OnlyInSource   []string                  `json:"only_in_source"`
	OnlyInTarget   []string                  `json:"only_in_target"`
	CommonColumns  []string                  `json:"common_columns"`
	TypeMismatches map[string]map[string]any `json:"type_mismatches"`
}

// Compare diffs two datasets.
//
// When no compare columns are given and the schemas differ, comparison
// defaults to the column intersection. Row matching is positional unless key
// columns are supplied.
func Compare(src, dst *dataset.Dataset, opt Options) (*Result, error) {
	schemaMatch, schemaDiff := compareSchemas(src, dst)

	compareColumns := opt.CompareColumns
	if len(compareColumns) == 0 {
		if !schemaMatch {
			if len(schemaDiff.CommonColumns) == 0 {
				return &Result{
					Match:             false,
					Message:           "No common columns between datasets",
					Summary:           Summary{SchemaMatch: false},
					ColumnDifferences: schemaDiff,
				}, nil
			}
			compareColumns = schemaDiff.CommonColumns
		} else {
			compareColumns = src.ColumnNames()
		}
	}

	shapeMatch := src.NumRows() == dst.NumRows()

	var rowDiff map[string]any
	if len(opt.KeyColumns) > 0 {
		if missing := src.MissingColumns(opt.KeyColumns); len(missing) > 0 {
			return nil, fmt.Errorf("key columns not in source dataset: %s", strings.Join(missing, ", "))
		}
		if missing := dst.MissingColumns(opt.KeyColumns); len(missing) > 0 {
			return nil, fmt.Errorf("key columns not in target dataset: %s", strings.Join(missing, ", "))
		}
		rowDiff = compareWithKeys(src, dst, opt.KeyColumns, compareColumns, opt)
	} else {
		rowDiff = comparePositional(src, dst, compareColumns, opt)
	}

	totalDiffs := rowDiff["total_differences"].(int)
	match := schemaMatch && shapeMatch && totalDiffs == 0

	var message string
	if match {
		message = "Datasets are identical"
	} else {
		var issues []string
		if !schemaMatch {
			issues = append(issues, "schema differences")
		}
		if !shapeMatch {
			issues = append(issues, fmt.Sprintf("row count mismatch (%d vs %d)", src.NumRows(), dst.NumRows()))
		}
		if totalDiffs > 0 {
			issues = append(issues, fmt.Sprintf("%d value differences", totalDiffs))
		}
		message = "Differences found: " + strings.Join(issues, ", ")
	}

	return &Result{
		Match:   match,
		Message: message,
		Summary: Summary{
			SchemaMatch:      schemaMatch,
			ShapeMatch:       shapeMatch,
			RowsCompared:     min(src.NumRows(), dst.NumRows()),
			TotalDifferences: totalDiffs,
		},
		ColumnDifferences: schemaDiff,
		RowDifferences:    rowDiff,
		Statistics:        calculateStatistics(src, dst, compareColumns),
	}, nil
}

func compareSchemas(src, dst *dataset.Dataset) (bool, SchemaDiff) {
	srcTypes := make(map[string]dataset.Type)
	for _, c := range src.Columns() {
		srcTypes[c.Name] = c.Type
	}
	dstTypes := make(map[string]dataset.Type)
	for _, c := range dst.Columns() {
		dstTypes[c.Name] = c.Type
	}

	diff := SchemaDiff{
		OnlyInSource:   []string{},
		OnlyInTarget:   []string{},
		CommonColumns:  []string{},
		TypeMismatches: map[string]map[string]any{},
	}
	for _, c := range src.ColumnNames() {
		if _, ok := dstTypes[c]; ok {
			diff.CommonColumns = append(diff.CommonColumns, c)
		} else {
			diff.OnlyInSource = append(diff.OnlyInSource, c)
		}
	}
	for _, c := range dst.ColumnNames() {
		if _, ok := srcTypes[c]; !ok {
			diff.OnlyInTarget = append(diff.OnlyInTarget, c)
		}
	}
	for _, c := range diff.CommonColumns {
		if srcTypes[c] != dstTypes[c] {
			diff.TypeMismatches[c] = map[string]any{
				"source_type": string(srcTypes[c]),
				"target_type": string(dstTypes[c]),
			}
		}
	}

	match := len(diff.OnlyInSource) == 0 && len(diff.OnlyInTarget) == 0 && len(diff.TypeMismatches) == 0
	return match, diff
}

// normalizeText applies the case/whitespace options to text values only.
func normalizeText(v dataset.Value, opt Options) dataset.Value {
	if v.Kind != dataset.KindText {
		return v
	}
	s := v.Str
	if opt.IgnoreCase {
		s = strings.ToLower(s)
	}
	if opt.IgnoreWhitespace {
		s = strings.TrimSpace(s)
	}
	return dataset.Text(s)
}

// cellsDiffer implements the shared comparison rule: null==null is never a
// difference; two numbers compare under |a-b| <= tolerance; everything else
// compares exactly after normalization.
func cellsDiffer(a, b dataset.Value, opt Options) bool {
	if a.IsNull() && b.IsNull() {
		return false
	}
	if a.IsNull() != b.IsNull() {
		return true
	}
	if fa, ok := a.AsNumber(); ok {
		if fb, ok := b.AsNumber(); ok {
			return math.Abs(fa-fb) > opt.Tolerance
		}
	}
	a, b = normalizeText(a, opt), normalizeText(b, opt)
	return !a.Equal(b)
}

func exportOrNil(v dataset.Value) any {
	if v.IsNull() {
		return nil
	}
	return v.String()
}

func comparePositional(src, dst *dataset.Dataset, compareColumns []string, opt Options) map[string]any {
	minRows := min(src.NumRows(), dst.NumRows())
	var differences []map[string]any

	for _, col := range compareColumns {
		si, di := src.ColumnIndex(col), dst.ColumnIndex(col)
		if si < 0 || di < 0 {
			continue
		}
		colDiffs := 0
		for row := 0; row < minRows; row++ {
			a, b := src.Cell(row, si), dst.Cell(row, di)
			if !cellsDiffer(a, b, opt) {
				continue
			}
			colDiffs++
			if colDiffs > perColumnCap {
				continue
			}
			differences = append(differences, map[string]any{
				"row_index":    row,
				"column":       col,
				"source_value": exportOrNil(a),
				"target_value": exportOrNil(b),
			})
		}
	}

	total := len(differences)
	if len(differences) > totalDiffCap {
		differences = differences[:totalDiffCap]
	}
	return map[string]any{
		"total_differences": total,
		"differences":       differences,
		"comparison_method": "positional",
	}
}

// compareWithKeys performs a full outer join on the key columns. Duplicate
// keys are aligned by occurrence order; unpaired occurrences count as
// only-in-source/target.
func compareWithKeys(src, dst *dataset.Dataset, keyColumns, compareColumns []string, opt Options) map[string]any {
	srcIdx := keyIndex(src, keyColumns)
	dstIdx := keyIndex(dst, keyColumns)

	onlyInSource, onlyInTarget, matching := 0, 0, 0
	var valueDiffs []map[string]any
	diffCount := 0

	// Stable iteration: keys in first-encounter order over source, then the
	// target-only keys in target order.
	for _, k := range srcIdx.order {
		sRows := srcIdx.rows[k]
		dRows := dstIdx.rows[k]
		pairs := min(len(sRows), len(dRows))
		onlyInSource += len(sRows) - pairs
		onlyInTarget += len(dRows) - pairs
		matching += pairs

		for p := 0; p < pairs; p++ {
			for _, col := range compareColumns {
				if contains(keyColumns, col) {
					continue
				}
				si, di := src.ColumnIndex(col), dst.ColumnIndex(col)
				if si < 0 || di < 0 {
					continue
				}
				a, b := src.Cell(sRows[p], si), dst.Cell(dRows[p], di)
				if !cellsDiffer(a, b, opt) {
					continue
				}
				diffCount++
				if diffCount > totalDiffCap {
					continue
				}
				keys := make(map[string]any, len(keyColumns))
				for _, kc := range keyColumns {
					keys[kc] = src.Cell(sRows[p], src.ColumnIndex(kc)).String()
				}
				valueDiffs = append(valueDiffs, map[string]any{
					"keys":         keys,
					"column":       col,
					"source_value": exportOrNil(a),
					"target_value": exportOrNil(b),
				})
			}
		}
	}
	for _, k := range dstIdx.order {
		if _, ok := srcIdx.rows[k]; !ok {
			onlyInTarget += len(dstIdx.rows[k])
		}
	}

	return map[string]any{
		"total_differences": diffCount + onlyInSource + onlyInTarget,
		"only_in_source":    onlyInSource,
		"only_in_target":    onlyInTarget,
		"matching_rows":     matching,
		"value_differences": valueDiffs,
		"comparison_method": "key_based",
	}
}

type rowIndex struct {
	order []string
	rows  map[string][]int
}

func keyIndex(ds *dataset.Dataset, keyColumns []string) rowIndex {
	indices := make([]int, len(keyColumns))
	for i, c := range keyColumns {
		indices[i] = ds.ColumnIndex(c)
	}
	idx := rowIndex{rows: make(map[string][]int)}
	for row := 0; row < ds.NumRows(); row++ {
		parts := make([]string, len(indices))
		for i, ci := range indices {
			parts[i] = ds.Cell(row, ci).String()
		}
		k := strings.Join(parts, "\x1f")
		if _, ok := idx.rows[k]; !ok {
			idx.order = append(idx.order, k)
		}
		idx.rows[k] = append(idx.rows[k], row)
	}
	return idx
}

func calculateStatistics(src, dst *dataset.Dataset, compareColumns []string) map[string]any {
	colStats := make(map[string]any)
	sorted := append([]string(nil), compareColumns...)
	sort.Strings(sorted)
	for _, col := range sorted {
		if !src.HasColumn(col) || !dst.HasColumn(col) {
			continue
		}
		entry := map[string]any{}
		if s, ok := src.NumericStats(col); ok {
			entry["source"] = map[string]any{"min": s.Min, "max": s.Max, "mean": s.Mean, "sum": s.Sum}
		}
		if s, ok := dst.NumericStats(col); ok {
			entry["target"] = map[string]any{"min": s.Min, "max": s.Max, "mean": s.Mean, "sum": s.Sum}
		}
		colStats[col] = entry
	}
	return map[string]any{
		"source_rows":    src.NumRows(),
		"target_rows":    dst.NumRows(),
		"source_columns": src.NumCols(),
		"target_columns": dst.NumCols(),
		"column_stats":   colStats,
	}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
