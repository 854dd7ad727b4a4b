package rules

import (
	"fmt"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// ValueSetCheck validates membership of column values in a configured
// allowed set. Nulls are rejected unless allow_null is set.
type ValueSetCheck struct{}

func (ValueSetCheck) Name() string { return "Value Set Check" }
func (ValueSetCheck) Description() string {
	return "Validates that column values are from a specified allowed set"
}

func (r ValueSetCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"column": {Type: "string", Description: "Column to validate"},
			"allowed_values": {
				Type:        "array",
				Items:       &Property{Type: "string"},
				Description: "List of allowed values",
			},
			"case_sensitive": {Type: "boolean", Default: true, Description: "Case-sensitive matching"},
			"allow_null":     {Type: "boolean", Default: false, Description: "Allow NULL values"},
		},
		Required: []string{"column", "allowed_values"},
	}
}

func (r ValueSetCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	column, err := cfg.stringReq("column")
	if err != nil {
		return nil, err
	}
	rawAllowed, ok := cfg.anyList("allowed_values")
	if !ok {
		return nil, &ConfigError{Field: "allowed_values", Reason: "must be a list"}
	}
	if len(rawAllowed) == 0 {
		return nil, &ConfigError{Field: "allowed_values", Reason: "must not be empty"}
	}
	caseSensitive := cfg.boolVal("case_sensitive", true)
	allowNull := cfg.boolVal("allow_null", false)

	if err := requireColumns(ds, []string{column}); err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(rawAllowed))
	allowedDisplay := make([]string, 0, len(rawAllowed))
	for _, v := range rawAllowed {
		s := dataset.FromAny(v).String()
		allowedDisplay = append(allowedDisplay, s)
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		allowed[s] = struct{}{}
	}

	ci := ds.ColumnIndex(column)
	type violation struct {
		row    int
		value  any
		reason string
	}
	var violations []violation
	invalidCounts := make(map[string]int)
	var invalidOrder []string
	nullCount := 0

	for i := 0; i < ds.NumRows(); i++ {
		v := ds.Cell(i, ci)
		if v.IsNull() {
			nullCount++
			if !allowNull {
				violations = append(violations, violation{row: i + 1, value: nil, reason: "NULL value not allowed"})
				if invalidCounts["NULL"] == 0 {
					invalidOrder = append(invalidOrder, "NULL")
				}
				invalidCounts["NULL"]++
			}
			continue
		}
		check := v.String()
		if !caseSensitive {
			check = strings.ToLower(check)
		}
		if _, ok := allowed[check]; !ok {
			display := v.String()
			violations = append(violations, violation{
				row:    i + 1,
				value:  v.Export(),
				reason: fmt.Sprintf("Not in allowed set: %s", strings.Join(allowedDisplay, ", ")),
			})
			if invalidCounts[display] == 0 {
				invalidOrder = append(invalidOrder, display)
			}
			invalidCounts[display]++
		}
	}

	totalRows := ds.NumRows()
	failedCount := len(violations)
	passed := failedCount == 0

	sort.SliceStable(invalidOrder, func(i, j int) bool {
		return invalidCounts[invalidOrder[i]] > invalidCounts[invalidOrder[j]]
	})
	invalidFreq := make([]map[string]any, 0, len(invalidOrder))
	for _, k := range invalidOrder {
		invalidFreq = append(invalidFreq, map[string]any{"value": k, "count": invalidCounts[k]})
	}

	var message string
	if passed {
		message = fmt.Sprintf("All %d values in %q are from allowed set", totalRows, column)
	} else {
		message = fmt.Sprintf("%d of %d values in %q are not in allowed set (%d unique invalid value(s))",
			failedCount, totalRows, column, len(invalidCounts))
	}

	failed := make([]map[string]any, 0, failedCount)
	detailViolations := make([]map[string]any, 0, failedCount)
	for i, v := range violations {
		if i >= failedRowCap {
			break
		}
		cell := v.value
		if cell == nil {
			cell = "NULL"
		}
		failed = append(failed, map[string]any{
			column:       cell,
			"row_number": v.row,
			"reason":     v.reason,
		})
		detailViolations = append(detailViolations, map[string]any{
			"row":    v.row,
			"value":  v.value,
			"reason": v.reason,
		})
	}

	res := &Result{
		RuleName: r.Name(),
		Passed:   passed,
		Message:  message,
		Details: map[string]any{
			"column":                  column,
			"allowed_values":          allowedDisplay,
			"violations":              detailViolations,
			"invalid_value_frequency": invalidFreq,
			"total_violations":        failedCount,
			"null_count":              nullCount,
		},
		Statistics: map[string]any{
			"total_rows":            totalRows,
			"valid_count":           totalRows - failedCount,
			"invalid_count":         failedCount,
			"null_count":            nullCount,
			"unique_invalid_values": len(invalidCounts),
			"compliance_rate":       pct(totalRows-failedCount, totalRows),
		},
	}
	res.FailedRows = failed
	res.FailedRowCount = failedCount
	return res, nil
}
