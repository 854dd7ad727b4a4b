package rules

import (
	"fmt"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// DuplicateCheck identifies duplicate rows keyed by a column subset
// (default: all columns). The keep policy decides which occurrence inside a
// duplicate group is not marked: "first", "last", or "none" (mark all).
type DuplicateCheck struct{}

func (DuplicateCheck) Name() string { return "Duplicate Check" }
func (DuplicateCheck) Description() string {
	return "Identifies duplicate rows based on specified key columns"
}

func (r DuplicateCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"columns": {
				Type:        "array",
				Items:       &Property{Type: "string"},
				Description: "Columns to check for duplicates (empty = all columns)",
			},
			"keep": {
				Type:        "string",
				Enum:        []string{"first", "last", "none"},
				Default:     "first",
				Description: "Which duplicate to keep when identifying duplicates",
			},
		},
	}
}

func (r DuplicateCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	columns, err := cfg.stringsVal("columns")
	if err != nil {
		return nil, err
	}
	keep := cfg.stringVal("keep", "first")
	switch keep {
	case "first", "last", "none":
	default:
		return nil, &ConfigError{Field: "keep", Reason: fmt.Sprintf("unknown keep policy %q", keep)}
	}

	if len(columns) == 0 {
		columns = ds.ColumnNames()
	} else if err := requireColumns(ds, columns); err != nil {
		return nil, err
	}

	indices := make([]int, len(columns))
	for i, c := range columns {
		indices[i] = ds.ColumnIndex(c)
	}

	// Group row indices by composite key, preserving encounter order.
	groups := make(map[string][]int)
	for i := 0; i < ds.NumRows(); i++ {
		k := rowKey(ds, i, indices)
		groups[k] = append(groups[k], i)
	}

	var marked []int
	groupSizes := make(map[int]int)
	for _, rows := range groups {
		if len(rows) < 2 {
			continue
		}
		groupSizes[len(rows)]++
		switch keep {
		case "first":
			marked = append(marked, rows[1:]...)
		case "last":
			marked = append(marked, rows[:len(rows)-1]...)
		case "none":
			marked = append(marked, rows...)
		}
	}

	sort.Ints(marked)

	duplicateCount := len(marked)
	totalRows := ds.NumRows()
	passed := duplicateCount == 0

	var message string
	if passed {
		message = fmt.Sprintf("No duplicates found in %d rows", totalRows)
	} else {
		message = fmt.Sprintf("Found %d duplicate rows (%.2f%%)", duplicateCount, pct(duplicateCount, totalRows))
	}

	failed := make([]map[string]any, 0, len(marked))
	for _, i := range marked {
		failed = append(failed, ds.Record(i))
	}

	res := &Result{
		RuleName: r.Name(),
		Passed:   passed,
		Message:  message,
		Details: map[string]any{
			"columns_checked": columns,
			"keep_strategy":   keep,
			"group_sizes":     groupSizes,
		},
		Statistics: map[string]any{
			"total_rows":           totalRows,
			"unique_rows":          totalRows - duplicateCount,
			"duplicate_rows":       duplicateCount,
			"duplicate_percentage": pct(duplicateCount, totalRows),
		},
	}
	res.setFailedRows(failed)
	return res, nil
}

// rowKey canonicalizes selected cells into a composite key. Nulls encode as
// a NUL byte so missing differs from empty-string; fields join on the ASCII
// unit separator.
func rowKey(ds *dataset.Dataset, row int, indices []int) string {
	parts := make([]string, len(indices))
	for i, ci := range indices {
		v := ds.Cell(row, ci)
		if v.IsNull() {
			parts[i] = "\x00"
			continue
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, "\x1f")
}
