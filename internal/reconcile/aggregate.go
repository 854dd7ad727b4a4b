package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"qc/internal/dataset"
)

const (
	aggRowCap  = 100
	flaggedCap = 50
)

// AggregationSpec asks for a grouped aggregate to be computed per source and
// compared against the first source as baseline.
type AggregationSpec struct {
	Column            string   `json:"column"`
	Function          string   `json:"function"`
	GroupBy           []string `json:"group_by,omitempty"`
	VarianceThreshold float64  `json:"variance_threshold"`
}

// AggregationReport carries the per-group aggregates for every source plus
// the groups whose variance against the baseline exceeds the threshold.
type AggregationReport struct {
	Column            string           `json:"column"`
	Function          string           `json:"function"`
	GroupBy           []string         `json:"group_by,omitempty"`
	Baseline          string           `json:"baseline"`
	VarianceThreshold float64          `json:"variance_threshold"`
	TotalGroups       int              `json:"total_groups"`
	FlaggedGroups     int              `json:"flagged_groups"`
	Results           []map[string]any `json:"results"`
	Variances         []map[string]any `json:"variances"`
}

var aggFunctions = map[string]bool{
	"sum": true, "avg": true, "mean": true, "min": true,
	"max": true, "count": true, "count_distinct": true,
}

// runAggregation computes the configured aggregate per group per source and
// flags groups where any non-baseline source varies beyond the threshold. A
// zero baseline with a non-zero comparand reports a variance of 100 so the
// group is never silently skipped.
func runAggregation(sources []Source, spec AggregationSpec) (*AggregationReport, error) {
	if spec.Column == "" {
		return nil, fmt.Errorf("reconcile: aggregation column is required")
	}
	fn := strings.ToLower(spec.Function)
	if !aggFunctions[fn] {
		return nil, fmt.Errorf("reconcile: unknown aggregation function %q", spec.Function)
	}
	for _, s := range sources {
		if !s.Data.HasColumn(spec.Column) {
			return nil, fmt.Errorf("reconcile: source %q missing aggregation column %q", s.Name, spec.Column)
		}
		if missing := s.Data.MissingColumns(spec.GroupBy); len(missing) > 0 {
			return nil, fmt.Errorf("reconcile: source %q missing group columns: %s", s.Name, strings.Join(missing, ", "))
		}
	}

	// group key -> source name -> aggregate
	perSource := make(map[string]map[string]float64)
	var order []string
	for _, s := range sources {
		ci := s.Data.ColumnIndex(spec.Column)
		for key, rows := range groupRows(s.Data, spec.GroupBy) {
			val := aggregate(s.Data, ci, rows, fn)
			if _, ok := perSource[key]; !ok {
				perSource[key] = make(map[string]float64, len(sources))
				order = append(order, key)
			}
			perSource[key][s.Name] = val
		}
	}
	sort.Strings(order)

	rep := &AggregationReport{
		Column:            spec.Column,
		Function:          fn,
		GroupBy:           spec.GroupBy,
		Baseline:          sources[0].Name,
		VarianceThreshold: spec.VarianceThreshold,
		TotalGroups:       len(order),
		Results:           []map[string]any{},
		Variances:         []map[string]any{},
	}

	for _, key := range order {
		vals := perSource[key]
		row := map[string]any{"group": key}
		for _, s := range sources {
			if v, ok := vals[s.Name]; ok {
				row[s.Name] = v
			} else {
				row[s.Name] = nil
			}
		}

		base, hasBase := vals[sources[0].Name]
		flagged := false
		for _, s := range sources[1:] {
			other, ok := vals[s.Name]
			if !hasBase || !ok {
				flagged = true
				row["variance_"+s.Name] = nil
				continue
			}
			variance := variancePct(base, other)
			row["variance_"+s.Name] = variance
			if variance > spec.VarianceThreshold {
				flagged = true
			}
		}

		row["exceeds_threshold"] = flagged
		if len(rep.Results) < aggRowCap {
			rep.Results = append(rep.Results, row)
		}
		if flagged {
			rep.FlaggedGroups++
			if len(rep.Variances) < flaggedCap {
				rep.Variances = append(rep.Variances, row)
			}
		}
	}
	return rep, nil
}

// variancePct is the percentage deviation of other from base.
func variancePct(base, other float64) float64 {
	if base == 0 {
		if other == 0 {
			return 0
		}
		return 100.0
	}
	return math.Abs(other-base) / math.Abs(base) * 100
}

// groupRows partitions row indexes by the joined group-by key. An empty
// group list yields a single group holding every row.
func groupRows(ds *dataset.Dataset, groupBy []string) map[string][]int {
	groups := make(map[string][]int)
	groupIdx := columnIndexes(ds, groupBy)
	for r := 0; r < ds.NumRows(); r++ {
		var key string
		if len(groupIdx) > 0 {
			parts := make([]string, len(groupIdx))
			for i, ci := range groupIdx {
				parts[i] = ds.Cell(r, ci).String()
			}
			key = strings.Join(parts, ", ")
		}
		groups[key] = append(groups[key], r)
	}
	return groups
}

func aggregate(ds *dataset.Dataset, ci int, rows []int, fn string) float64 {
	switch fn {
	case "count":
		n := 0
		for _, r := range rows {
			if !ds.Cell(r, ci).IsNull() {
				n++
			}
		}
		return float64(n)
	case "count_distinct":
		seen := make(map[string]bool)
		for _, r := range rows {
			if v := ds.Cell(r, ci); !v.IsNull() {
				seen[v.String()] = true
			}
		}
		return float64(len(seen))
	}

	var nums []float64
	for _, r := range rows {
		if f, ok := ds.Cell(r, ci).AsNumber(); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0
	}
	switch fn {
	case "sum":
		var s float64
		for _, f := range nums {
			s += f
		}
		return s
	case "avg", "mean":
		var s float64
		for _, f := range nums {
			s += f
		}
		return s / float64(len(nums))
	case "min":
		m := nums[0]
		for _, f := range nums[1:] {
			if f < m {
				m = f
			}
		}
		return m
	case "max":
		m := nums[0]
		for _, f := range nums[1:] {
			if f > m {
				m = f
			}
		}
		return m
	}
	return 0
}
