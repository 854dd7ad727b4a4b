package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// AggregationCheck computes one or more {column, function} aggregates with
// optional grouping, and for the single-aggregation case optionally checks
// the overall value against an expected value under absolute or percentage
// tolerance.
type AggregationCheck struct{}

func (AggregationCheck) Name() string { return "Aggregation Check" }
func (AggregationCheck) Description() string {
	return "Validates that aggregation results match expected values"
}

func aggregationNames() []string {
	return []string{"sum", "avg", "mean", "min", "max", "count", "count_distinct", "std", "var"}
}

// aggSpec is the canonical internal shape. The legacy single column +
// aggregation pair and the aggregations list are both normalized into it at
// the config boundary; nothing downstream branches on the external shape.
type aggSpec struct {
	Column   string
	Function string
}

func normalizeAggSpecs(cfg Config) ([]aggSpec, error) {
	if list, ok := cfg.anyList("aggregations"); ok {
		if len(list) == 0 {
			return nil, &ConfigError{Field: "aggregations", Reason: "must not be empty"}
		}
		out := make([]aggSpec, 0, len(list))
		for i, e := range list {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, &ConfigError{Field: "aggregations", Reason: fmt.Sprintf("entry %d is not an object", i)}
			}
			entry := Config(m)
			col, err := entry.stringReq("column")
			if err != nil {
				return nil, &ConfigError{Field: "aggregations", Reason: fmt.Sprintf("entry %d: column is required", i)}
			}
			fn := entry.stringVal("function", entry.stringVal("aggregation", ""))
			if fn == "" {
				return nil, &ConfigError{Field: "aggregations", Reason: fmt.Sprintf("entry %d: function is required", i)}
			}
			out = append(out, aggSpec{Column: col, Function: strings.ToLower(fn)})
		}
		return out, nil
	}

	col, err := cfg.stringReq("column")
	if err != nil {
		return nil, err
	}
	fn, err := cfg.stringReq("aggregation")
	if err != nil {
		return nil, err
	}
	return []aggSpec{{Column: col, Function: strings.ToLower(fn)}}, nil
}

func (r AggregationCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"column":      {Type: "string", Description: "Column to aggregate (single-aggregation form)"},
			"aggregation": {Type: "string", Enum: aggregationNames(), Description: "Aggregation function to apply"},
			"aggregations": {
				Type:        "array",
				Description: "List of {column, function} pairs (multi-aggregation form)",
			},
			"expected_value": {Type: "number", Description: "Expected aggregation result"},
			"tolerance":      {Type: "number", Default: 0, Description: "Acceptable tolerance for comparison"},
			"tolerance_type": {
				Type:        "string",
				Enum:        []string{"absolute", "percentage"},
				Default:     "absolute",
				Description: "Type of tolerance (absolute or percentage)",
			},
			"group_by": {
				Type:        "array",
				Items:       &Property{Type: "string"},
				Description: "Columns to group by before aggregation",
			},
		},
	}
}

func (r AggregationCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	specs, err := normalizeAggSpecs(cfg)
	if err != nil {
		return nil, err
	}
	groupBy, err := cfg.stringsVal("group_by")
	if err != nil {
		return nil, err
	}

	var cols []string
	for _, s := range specs {
		cols = append(cols, s.Column)
	}
	cols = append(cols, groupBy...)
	if err := requireColumns(ds, cols); err != nil {
		return nil, err
	}
	for _, s := range specs {
		if !isAggregation(s.Function) {
			return nil, &ConfigError{Field: "aggregation", Reason: fmt.Sprintf("unknown aggregation %q", s.Function)}
		}
	}

	expected, hasExpected := cfg.floatVal("expected_value")
	tolerance := cfg.floatOr("tolerance", 0)
	toleranceType := cfg.stringVal("tolerance_type", "absolute")
	switch toleranceType {
	case "absolute", "percentage":
	default:
		return nil, &ConfigError{Field: "tolerance_type", Reason: fmt.Sprintf("unknown tolerance type %q", toleranceType)}
	}

	passed := true
	comparison := map[string]any{}
	values := make(map[string]any, len(specs))
	grouped := make(map[string]any)
	var firstOverall float64
	var firstOverallOK bool

	for i, s := range specs {
		label := fmt.Sprintf("%s(%s)", s.Function, s.Column)
		overall, ok := aggregateColumn(ds, s.Column, s.Function, nil)
		if ok {
			values[label] = overall
		} else {
			values[label] = nil
		}
		if i == 0 {
			firstOverall, firstOverallOK = overall, ok
		}
		if len(groupBy) > 0 {
			grouped[label] = aggregateGrouped(ds, s.Column, s.Function, groupBy)
		}
	}

	// Expected-value check applies to the single-aggregation case only.
	if hasExpected && len(specs) == 1 && firstOverallOK {
		tolAmount := tolerance
		if toleranceType == "percentage" {
			tolAmount = math.Abs(expected * tolerance / 100)
		}
		diff := math.Abs(firstOverall - expected)
		passed = diff <= tolAmount
		comparison = map[string]any{
			"expected":         expected,
			"actual":           firstOverall,
			"difference":       math.Round(diff*10000) / 10000,
			"tolerance":        tolerance,
			"tolerance_type":   toleranceType,
			"within_tolerance": passed,
		}
	}

	var message string
	first := specs[0]
	if len(groupBy) > 0 {
		message = fmt.Sprintf("%s(%s) by %s: %v", strings.ToUpper(first.Function), first.Column, strings.Join(groupBy, ","), values[fmt.Sprintf("%s(%s)", first.Function, first.Column)])
	} else {
		message = fmt.Sprintf("%s(%s): %v", strings.ToUpper(first.Function), first.Column, values[fmt.Sprintf("%s(%s)", first.Function, first.Column)])
	}
	if hasExpected && !passed {
		message += fmt.Sprintf(" (expected: %g, diff: %.4f)", expected, math.Abs(firstOverall-expected))
	}

	details := map[string]any{
		"group_by":   groupBy,
		"comparison": comparison,
	}
	if len(specs) == 1 {
		details["column"] = first.Column
		details["aggregation"] = first.Function
	} else {
		aggs := make([]map[string]any, len(specs))
		for i, s := range specs {
			aggs[i] = map[string]any{"column": s.Column, "function": s.Function}
		}
		details["aggregations"] = aggs
	}

	stats := map[string]any{"aggregated_values": values}
	if len(groupBy) > 0 {
		stats["grouped_values"] = grouped
	}

	return &Result{
		RuleName:   r.Name(),
		Passed:     passed,
		Message:    message,
		Details:    details,
		Statistics: stats,
	}, nil
}

func isAggregation(name string) bool {
	for _, n := range aggregationNames() {
		if n == name {
			return true
		}
	}
	return false
}

// aggregateColumn computes one aggregate over the rows listed in subset
// (nil = all rows). ok is false when the aggregate is undefined, for example
// avg over zero numeric values.
func aggregateColumn(ds *dataset.Dataset, column, fn string, subset []int) (float64, bool) {
	ci := ds.ColumnIndex(column)
	if ci < 0 {
		return 0, false
	}

	rows := subset
	if rows == nil {
		rows = make([]int, ds.NumRows())
		for i := range rows {
			rows[i] = i
		}
	}

	switch fn {
	case "count":
		n := 0
		for _, i := range rows {
			if !ds.Cell(i, ci).IsNull() {
				n++
			}
		}
		return float64(n), true
	case "count_distinct":
		seen := make(map[string]struct{})
		for _, i := range rows {
			v := ds.Cell(i, ci)
			if v.IsNull() {
				continue
			}
			seen[v.String()] = struct{}{}
		}
		return float64(len(seen)), true
	}

	var nums []float64
	for _, i := range rows {
		if f, ok := ds.Cell(i, ci).AsNumber(); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0, false
	}

	switch fn {
	case "sum":
		s := 0.0
		for _, f := range nums {
			s += f
		}
		return s, true
	case "avg", "mean":
		s := 0.0
		for _, f := range nums {
			s += f
		}
		return s / float64(len(nums)), true
	case "min":
		m := nums[0]
		for _, f := range nums[1:] {
			if f < m {
				m = f
			}
		}
		return m, true
	case "max":
		m := nums[0]
		for _, f := range nums[1:] {
			if f > m {
				m = f
			}
		}
		return m, true
	case "std", "var":
		if len(nums) < 2 {
			return 0, false
		}
		mean := 0.0
		for _, f := range nums {
			mean += f
		}
		mean /= float64(len(nums))
		ss := 0.0
		for _, f := range nums {
			d := f - mean
			ss += d * d
		}
		variance := ss / float64(len(nums)-1)
		if fn == "var" {
			return variance, true
		}
		return math.Sqrt(variance), true
	default:
		return 0, false
	}
}

// aggregateGrouped computes the aggregate per group-by key. Group keys
// render as comma-joined display values; output order is stable.
func aggregateGrouped(ds *dataset.Dataset, column, fn string, groupBy []string) map[string]any {
	indices := make([]int, len(groupBy))
	for i, g := range groupBy {
		indices[i] = ds.ColumnIndex(g)
	}

	groups := make(map[string][]int)
	var order []string
	for i := 0; i < ds.NumRows(); i++ {
		parts := make([]string, len(indices))
		for j, ci := range indices {
			parts[j] = ds.Cell(i, ci).String()
		}
		k := strings.Join(parts, ", ")
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Strings(order)

	out := make(map[string]any, len(groups))
	for _, k := range order {
		if v, ok := aggregateColumn(ds, column, fn, groups[k]); ok {
			out[k] = v
		} else {
			out[k] = nil
		}
	}
	return out
}
