package rules

import (
	"fmt"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// UniquenessCheck validates that one column holds only unique values.
// Case folding and null exemption are configurable.
type UniquenessCheck struct{}

func (UniquenessCheck) Name() string { return "Uniqueness Check" }
func (UniquenessCheck) Description() string {
	return "Validates that a column contains only unique values (no duplicates)"
}

func (r UniquenessCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"column":         {Type: "string", Description: "Column to check for uniqueness"},
			"case_sensitive": {Type: "boolean", Default: true, Description: "Treat values as case-sensitive"},
			"ignore_nulls":   {Type: "boolean", Default: true, Description: "Ignore NULL values in uniqueness check"},
		},
		Required: []string{"column"},
	}
}

func (r UniquenessCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	column, err := cfg.stringReq("column")
	if err != nil {
		return nil, err
	}
	caseSensitive := cfg.boolVal("case_sensitive", true)
	ignoreNulls := cfg.boolVal("ignore_nulls", true)

	if err := requireColumns(ds, []string{column}); err != nil {
		return nil, err
	}
	ci := ds.ColumnIndex(column)

	// occurrence key per row; nulls keyed separately so they can be exempted.
	const nullKey = "\x00null"
	keyFor := func(v dataset.Value) string {
		if v.IsNull() {
			return nullKey
		}
		s := v.String()
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		return s
	}

	counts := make(map[string]int)
	rowsByKey := make(map[string][]int)
	var order []string
	for i := 0; i < ds.NumRows(); i++ {
		v := ds.Cell(i, ci)
		if v.IsNull() && ignoreNulls {
			continue
		}
		k := keyFor(v)
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
		rowsByKey[k] = append(rowsByKey[k], i)
	}

	var dupKeys []string
	duplicateRows := 0
	for _, k := range order {
		if counts[k] > 1 {
			dupKeys = append(dupKeys, k)
			duplicateRows += counts[k]
		}
	}
	// Most frequent first, ties by first encounter.
	sort.SliceStable(dupKeys, func(i, j int) bool { return counts[dupKeys[i]] > counts[dupKeys[j]] })

	totalRows := ds.NumRows()
	passed := duplicateRows == 0

	var message string
	if passed {
		message = fmt.Sprintf("All %d values in %q are unique", totalRows, column)
	} else {
		message = fmt.Sprintf("%d duplicate rows found across %d distinct value(s) in %q",
			duplicateRows, len(dupKeys), column)
	}

	display := func(k string) string {
		if k == nullKey {
			return "NULL"
		}
		return k
	}

	violations := make([]map[string]any, 0, len(dupKeys))
	var failed []map[string]any
	for i, k := range dupKeys {
		violations = append(violations, map[string]any{
			"value":       display(k),
			"occurrences": counts[k],
		})
		if i >= 20 {
			continue
		}
		rows := rowsByKey[k]
		sampleRows := make([]string, 0, 5)
		for _, ri := range rows[:min(5, len(rows))] {
			sampleRows = append(sampleRows, fmt.Sprint(ri+1))
		}
		failed = append(failed, map[string]any{
			column:        display(k),
			"occurrences": counts[k],
			"sample_rows": strings.Join(sampleRows, ", "),
		})
	}

	res := &Result{
		RuleName: r.Name(),
		Passed:   passed,
		Message:  message,
		Details: map[string]any{
			"column":               column,
			"violations":           violations,
			"total_duplicate_rows": duplicateRows,
			"unique_values":        len(counts),
		},
		Statistics: map[string]any{
			"total_rows":      totalRows,
			"unique_values":   len(counts),
			"duplicate_rows":  duplicateRows,
			"uniqueness_rate": pct(len(counts), totalRows),
		},
	}
	res.FailedRows = failed
	res.FailedRowCount = duplicateRows
	return res, nil
}
