// Package export shapes heterogeneous result objects into one structure a
// renderer can turn into CSV or JSON: a summary table, failed-row tables
// keyed by a readable label, and optional comparison/aggregation side tables.
package export

import (
	"fmt"
	"strings"

	"qc/internal/calc"
	"qc/internal/compare"
	"qc/internal/reconcile"
	"qc/internal/rules"
)

// Data is the export-ready form of any result kind.
type Data struct {
	Summary     []map[string]any            `json:"summary"`
	FailedRows  map[string][]map[string]any `json:"failed_rows,omitempty"`
	Comparison  []map[string]any            `json:"comparison,omitempty"`
	Aggregation []map[string]any            `json:"aggregation,omitempty"`
}

// Options controls shaping. IncludeFailedRows defaults to true via the
// boundary layer; the zero value here means "omit detail tables".
type Options struct {
	IncludeFailedRows bool
}

// ShapeBatch flattens a rule-batch result: one summary row per rule with the
// scalar statistics promoted into titled columns, and one failed-row table
// per failing rule.
func ShapeBatch(batch *rules.BatchResult, opts Options) *Data {
	data := &Data{
		Summary:    []map[string]any{},
		FailedRows: map[string][]map[string]any{},
	}
	for _, res := range batch.Results {
		row := map[string]any{
			"Rule":    res.RuleName,
			"Passed":  res.Passed,
			"Status":  passFail(res.Passed),
			"Message": res.Message,
		}
		for key, value := range res.Statistics {
			switch value.(type) {
			case int, int64, float64, string, bool:
				row[titleKey(key)] = value
			}
		}
		data.Summary = append(data.Summary, row)

		if opts.IncludeFailedRows && len(res.FailedRows) > 0 {
			data.FailedRows[res.RuleName] = res.FailedRows
		}
	}
	return data
}

// ShapeComparison flattens a pairwise comparison into a single summary row
// plus the positional/keyed differences as the comparison side table.
func ShapeComparison(res *compare.Result, opts Options) *Data {
	data := &Data{
		Summary: []map[string]any{{
			"Type":              "Dataset Comparison",
			"Status":            passFail(res.Match),
			"Match":             res.Match,
			"Message":           res.Message,
			"Rows Compared":     res.Summary.RowsCompared,
			"Total Differences": res.Summary.TotalDifferences,
		}},
	}
	if diffs, ok := res.RowDifferences["differences"].([]map[string]any); ok && len(diffs) > 0 {
		data.Comparison = diffs
	}
	return data
}

// ShapeReconciliation flattens a multi-source reconciliation: one summary
// row per section (duplicates, per-source unique, value differences with a
// per-column breakdown, aggregation), with the detail rows as failed-row
// tables and the per-group aggregate comparison as a side table.
func ShapeReconciliation(res *reconcile.Result, opts Options) *Data {
	data := &Data{
		Summary:    []map[string]any{},
		FailedRows: map[string][]map[string]any{},
	}

	if dup := res.Duplicates; dup != nil {
		data.Summary = append(data.Summary, map[string]any{
			"Type":   "Duplicates (In Multiple Sources)",
			"Count":  dup.Count,
			"Status": passFail(dup.Count == 0),
		})
		if opts.IncludeFailedRows && len(dup.Rows) > 0 {
			data.FailedRows["Duplicates"] = dup.Rows
		}
	}

	for _, name := range res.Sources {
		info, ok := res.Unique[name]
		if !ok {
			continue
		}
		data.Summary = append(data.Summary, map[string]any{
			"Type":   "Unique to: " + name,
			"Count":  info.Count,
			"Status": "INFO",
		})
		if opts.IncludeFailedRows && len(info.Rows) > 0 {
			data.FailedRows["Unique_"+name] = info.Rows
		}
	}

	if diff := res.NotMatched; diff != nil {
		data.Summary = append(data.Summary, map[string]any{
			"Type":   "Value Differences",
			"Count":  diff.Count,
			"Status": passFail(diff.Count == 0),
		})
		if opts.IncludeFailedRows && len(diff.Rows) > 0 {
			data.FailedRows["Differences"] = diff.Rows
		}
		for _, col := range sortedKeys(diff.ColumnDifferences) {
			data.Summary = append(data.Summary, map[string]any{
				"Type":   "Column Difference: " + col,
				"Count":  diff.ColumnDifferences[col],
				"Status": "DETAIL",
			})
		}
	}

	if agg := res.Aggregation; agg != nil {
		data.Summary = append(data.Summary, map[string]any{
			"Type":   fmt.Sprintf("Aggregation: %s(%s)", strings.ToUpper(agg.Function), agg.Column),
			"Count":  agg.TotalGroups,
			"Status": passFail(len(agg.Variances) == 0),
		})
		if len(agg.Results) > 0 {
			data.Aggregation = agg.Results
		}
		if opts.IncludeFailedRows && len(agg.Variances) > 0 {
			data.FailedRows["Aggregation_Variances"] = agg.Variances
		}
	}
	return data
}

// ShapeCalculation flattens a formula-calculation result into one summary
// row per entry.
func ShapeCalculation(res *calc.Result, opts Options) *Data {
	data := &Data{Summary: []map[string]any{}}
	for _, e := range res.Entries {
		row := map[string]any{
			"Type":   fmt.Sprintf("%s: %s(%s)", e.Name, strings.ToUpper(e.Function), e.Column),
			"Value":  e.Value,
			"Status": "INFO",
		}
		if e.Group != "" {
			row["Group"] = e.Group
		}
		data.Summary = append(data.Summary, row)
	}
	return data
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

// titleKey turns snake_case statistic names into title-cased column labels.
func titleKey(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
