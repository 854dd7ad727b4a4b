package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// preferredOrder fixes the leading columns of rendered tables; anything not
// listed follows in sorted order. Map-backed rows have no inherent order, so
// the renderer imposes one.
var preferredOrder = []string{
	"Rule", "Type", "Status", "Passed", "Match", "Message",
	"Count", "Value", "Group",
}

// WriteCSV renders the shaped data as a sectioned CSV report: the summary
// table first, then one titled section per failed-row table, then the
// comparison and aggregation side tables when present.
func WriteCSV(w io.Writer, data *Data) error {
	if _, err := fmt.Fprintf(w, "QC Results Summary\n%s\n\n", strings.Repeat("=", 50)); err != nil {
		return err
	}
	if err := writeTable(w, data.Summary); err != nil {
		return err
	}

	if len(data.FailedRows) > 0 {
		if _, err := fmt.Fprintf(w, "\n\nFailed Rows Detail\n%s\n\n", strings.Repeat("=", 50)); err != nil {
			return err
		}
		for _, label := range sortedLabels(data.FailedRows) {
			rows := data.FailedRows[label]
			if len(rows) == 0 {
				continue
			}
			if _, err := fmt.Fprintf(w, "\n%s\n%s\n", label, strings.Repeat("-", 30)); err != nil {
				return err
			}
			if err := writeTable(w, rows); err != nil {
				return err
			}
		}
	}

	if len(data.Comparison) > 0 {
		if _, err := fmt.Fprintf(w, "\n\nDataset Comparison\n%s\n\n", strings.Repeat("=", 50)); err != nil {
			return err
		}
		if err := writeTable(w, data.Comparison); err != nil {
			return err
		}
	}
	if len(data.Aggregation) > 0 {
		if _, err := fmt.Fprintf(w, "\n\nAggregation Comparison\n%s\n\n", strings.Repeat("=", 50)); err != nil {
			return err
		}
		if err := writeTable(w, data.Aggregation); err != nil {
			return err
		}
	}
	return nil
}

// WriteDatasetCSV renders a dataset as a plain CSV table in column order.
func WriteDatasetCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, ds.NumCols())
	for i := 0; i < ds.NumRows(); i++ {
		row := ds.Row(i)
		for c, v := range row {
			record[c] = v.String()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON renders the shaped data as indented JSON.
func WriteJSON(w io.Writer, data *Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// writeTable renders a list of map rows as one CSV table with a header made
// from the union of row keys.
func writeTable(w io.Writer, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	header := columnOrder(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = cellString(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool, int, int64:
		return fmt.Sprint(t)
	default:
		// Nested structures (difference details) get compact JSON.
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// columnOrder returns the union of keys across the rows: the preferred
// columns first, the rest sorted.
func columnOrder(rows []map[string]any) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	var header []string
	for _, k := range preferredOrder {
		if seen[k] {
			header = append(header, k)
			delete(seen, k)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(header, rest...)
}

func sortedLabels(m map[string][]map[string]any) []string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
