package rules

import (
	"fmt"
	"strings"

	"qc/internal/dataset"
)

// RangeCheck validates that numeric values in one column fall inside the
// configured min/max bounds. Bounds are inclusive by default; with
// inclusive=false a value exactly on a bound fails.
type RangeCheck struct{}

func (RangeCheck) Name() string { return "Range Check" }
func (RangeCheck) Description() string {
	return "Validates that numeric column values fall within specified min/max bounds"
}

func (r RangeCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"column":    {Type: "string", Description: "Column to check for value range"},
			"min_value": {Type: "number", Description: "Minimum allowed value"},
			"max_value": {Type: "number", Description: "Maximum allowed value"},
			"inclusive": {Type: "boolean", Default: true, Description: "Whether bounds are inclusive"},
		},
		Required: []string{"column"},
	}
}

func (r RangeCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	column, err := cfg.stringReq("column")
	if err != nil {
		return nil, err
	}
	if err := requireColumns(ds, []string{column}); err != nil {
		return nil, err
	}

	minValue, hasMin := cfg.floatVal("min_value")
	maxValue, hasMax := cfg.floatVal("max_value")
	inclusive := cfg.boolVal("inclusive", true)

	vals, valid, err := ds.NumericColumn(column)
	if err != nil {
		return nil, err
	}

	var outOfRange []int
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		bad := false
		if hasMin {
			if inclusive {
				bad = bad || v < minValue
			} else {
				bad = bad || v <= minValue
			}
		}
		if hasMax {
			if inclusive {
				bad = bad || v > maxValue
			} else {
				bad = bad || v >= maxValue
			}
		}
		if bad {
			outOfRange = append(outOfRange, i)
		}
	}

	violationCount := len(outOfRange)
	totalRows := ds.NumRows()
	passed := violationCount == 0

	var bounds []string
	if hasMin {
		bounds = append(bounds, fmt.Sprintf("min=%g", minValue))
	}
	if hasMax {
		bounds = append(bounds, fmt.Sprintf("max=%g", maxValue))
	}
	boundsStr := strings.Join(bounds, ", ")

	var message string
	if passed {
		message = fmt.Sprintf("All values in %q are within range (%s)", column, boundsStr)
	} else {
		message = fmt.Sprintf("%d values in %q are out of range (%s)", violationCount, column, boundsStr)
	}

	actual := map[string]any{"min": nil, "max": nil, "mean": nil, "median": nil}
	stats := map[string]any{
		"total_rows":           totalRows,
		"violation_count":      violationCount,
		"violation_percentage": pct(violationCount, totalRows),
	}
	if s, ok := ds.NumericStats(column); ok {
		actual["min"], actual["max"], actual["mean"], actual["median"] = s.Min, s.Max, s.Mean, s.Median
		stats["min"], stats["max"], stats["mean"], stats["median"] = s.Min, s.Max, s.Mean, s.Median
	}

	details := map[string]any{
		"column":       column,
		"inclusive":    inclusive,
		"actual_range": actual,
	}
	if hasMin {
		details["min_value"] = minValue
	}
	if hasMax {
		details["max_value"] = maxValue
	}

	failed := make([]map[string]any, 0, len(outOfRange))
	for _, i := range outOfRange {
		failed = append(failed, ds.Record(i))
	}

	res := &Result{
		RuleName:   r.Name(),
		Passed:     passed,
		Message:    message,
		Details:    details,
		Statistics: stats,
	}
	res.setFailedRows(failed)
	return res, nil
}
