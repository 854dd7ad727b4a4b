package rules

import (
	"fmt"

	"qc/internal/dataset"
)

// NullCheck validates that the checked columns stay under a null-percentage
// threshold (default 0: no nulls allowed). The exact boundary passes.
type NullCheck struct{}

func (NullCheck) Name() string { return "Null Check" }
func (NullCheck) Description() string {
	return "Validates that specified columns do not contain null or missing values"
}

func (r NullCheck) Schema() Schema {
	zero, hundred := 0.0, 100.0
	return Schema{
		Properties: map[string]Property{
			"columns": {
				Type:        "array",
				Items:       &Property{Type: "string"},
				Description: "Columns to check for nulls (empty = all columns)",
			},
			"threshold": {
				Type:        "number",
				Minimum:     &zero,
				Maximum:     &hundred,
				Default:     0,
				Description: "Maximum acceptable null percentage (0-100)",
			},
		},
	}
}

func (r NullCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	columns, err := cfg.stringsVal("columns")
	if err != nil {
		return nil, err
	}
	threshold := cfg.floatOr("threshold", 0)

	if len(columns) == 0 {
		columns = ds.ColumnNames()
	}
	if err := requireColumns(ds, columns); err != nil {
		return nil, err
	}

	totalRows := ds.NumRows()
	nullCounts := make(map[string]any, len(columns))
	violations := make(map[string]any)
	totalNullCells := 0
	var failed []map[string]any

	for _, col := range columns {
		ci := ds.ColumnIndex(col)
		nulls := 0
		for i := 0; i < totalRows; i++ {
			if ds.Cell(i, ci).IsNull() {
				nulls++
				rec := ds.Record(i)
				rec["_failed_column"] = col
				failed = append(failed, rec)
			}
		}
		nullPct := pct(nulls, totalRows)
		entry := map[string]any{
			"null_count":      nulls,
			"null_percentage": nullPct,
		}
		nullCounts[col] = entry
		totalNullCells += nulls
		if nullPct > threshold {
			violations[col] = entry
		}
	}

	passed := len(violations) == 0
	var message string
	if passed {
		message = fmt.Sprintf("All %d columns pass null check", len(columns))
	} else {
		message = fmt.Sprintf("%d column(s) exceed null threshold of %g%%", len(violations), threshold)
	}

	res := &Result{
		RuleName: r.Name(),
		Passed:   passed,
		Message:  message,
		Details: map[string]any{
			"columns_checked": columns,
			"null_counts":     nullCounts,
			"violations":      violations,
			"threshold":       threshold,
		},
		Statistics: map[string]any{
			"total_rows":       totalRows,
			"total_null_cells": totalNullCells,
		},
	}
	res.setFailedRows(failed)
	return res, nil
}
