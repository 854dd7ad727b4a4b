// Package calc evaluates named aggregate formulas over a dataset. A
// calculation is a list of {name, column, function} entries, optionally
// grouped, producing one value (or one value per group) per entry.
package calc

import (
	"fmt"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// Formula is one named aggregate over a column.
type Formula struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Function string `json:"function"`
}

// Options configures a calculation run.
type Options struct {
	Formulas []Formula
	GroupBy  []string
}

// Entry is the evaluated value of one formula, for one group when grouped.
type Entry struct {
	Name     string  `json:"name"`
	Column   string  `json:"column"`
	Function string  `json:"function"`
	Group    string  `json:"group,omitempty"`
	Value    float64 `json:"value"`
}

// Result holds every evaluated entry in formula order, groups sorted within
// each formula.
type Result struct {
	Entries []Entry  `json:"entries"`
	GroupBy []string `json:"group_by,omitempty"`
	Groups  int      `json:"groups,omitempty"`
}

var functions = map[string]bool{
	"sum": true, "avg": true, "mean": true, "min": true, "max": true,
	"count": true, "count_distinct": true, "median": true,
}

// Run evaluates every formula against the dataset.
func Run(ds *dataset.Dataset, opts Options) (*Result, error) {
	if len(opts.Formulas) == 0 {
		return nil, fmt.Errorf("calc: at least one formula is required")
	}
	for _, f := range opts.Formulas {
		if f.Column == "" {
			return nil, fmt.Errorf("calc: formula %q has no column", f.Name)
		}
		if !ds.HasColumn(f.Column) {
			return nil, fmt.Errorf("calc: column %q not found", f.Column)
		}
		if !functions[strings.ToLower(f.Function)] {
			return nil, fmt.Errorf("calc: unknown function %q", f.Function)
		}
	}
	if missing := ds.MissingColumns(opts.GroupBy); len(missing) > 0 {
		return nil, fmt.Errorf("calc: group columns not found: %s", strings.Join(missing, ", "))
	}

	groups := groupRows(ds, opts.GroupBy)
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &Result{GroupBy: opts.GroupBy}
	if len(opts.GroupBy) > 0 {
		res.Groups = len(keys)
	}
	for _, f := range opts.Formulas {
		fn := strings.ToLower(f.Function)
		name := f.Name
		if name == "" {
			name = fn + "_" + f.Column
		}
		for _, k := range keys {
			res.Entries = append(res.Entries, Entry{
				Name:     name,
				Column:   f.Column,
				Function: fn,
				Group:    k,
				Value:    evaluate(ds, ds.ColumnIndex(f.Column), groups[k], fn),
			})
		}
	}
	return res, nil
}

func groupRows(ds *dataset.Dataset, groupBy []string) map[string][]int {
	groups := make(map[string][]int)
	groupIdx := make([]int, len(groupBy))
	for i, col := range groupBy {
		groupIdx[i] = ds.ColumnIndex(col)
	}
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

func evaluate(ds *dataset.Dataset, ci int, rows []int, fn string) float64 {
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
		return sum(nums)
	case "avg", "mean":
		return sum(nums) / float64(len(nums))
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
	case "median":
		s := append([]float64(nil), nums...)
		sort.Float64s(s)
		n := len(s)
		if n%2 == 1 {
			return s[n/2]
		}
		return (s[n/2-1] + s[n/2]) / 2
	}
	return 0
}

func sum(nums []float64) float64 {
	var s float64
	for _, f := range nums {
		s += f
	}
	return s
}
