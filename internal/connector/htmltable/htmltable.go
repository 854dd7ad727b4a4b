// Package htmltable loads datasets from HTML tables. The DSN is a local
// file path; the query string selects the table by zero-based index
// (empty means the first table).
package htmltable

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"qc/internal/connector"
	"qc/internal/dataset"
)

type Conn struct {
	path string
}

func init() {
	connector.Register("html", New)
}

func New(ctx context.Context, cfg connector.Config) (connector.Connector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("htmltable: path is required")
	}
	if _, err := os.Stat(cfg.DSN); err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}
	return &Conn{path: cfg.DSN}, nil
}

func (c *Conn) Close() {}

func (c *Conn) Query(ctx context.Context, query string) (*dataset.Dataset, error) {
	index := 0
	if strings.TrimSpace(query) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(query))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("htmltable: table index must be a non-negative integer, got %q", query)
		}
		index = n
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}
	defer f.Close()
	return Read(f, index)
}

func (c *Conn) Schema(ctx context.Context) (map[string]any, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("htmltable: parse: %w", err)
	}

	var tables []map[string]any
	doc.Find("table").Each(func(i int, sel *goquery.Selection) {
		tables = append(tables, map[string]any{
			"index":   i,
			"headers": headerCells(sel),
			"rows":    sel.Find("tr").Length(),
		})
	})
	return map[string]any{"tables": tables}, nil
}

// Read parses the index-th <table> of the document into a typed dataset.
// Headers come from <th> cells when present, otherwise from the first row;
// column types are inferred from the cell text.
func Read(r io.Reader, index int) (*dataset.Dataset, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmltable: parse: %w", err)
	}

	tables := doc.Find("table")
	if index >= tables.Length() {
		return nil, fmt.Errorf("htmltable: table %d not found (document has %d)", index, tables.Length())
	}
	table := tables.Eq(index)

	headers := headerCells(table)
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, strings.TrimSpace(td.Text()))
		})
		rows = append(rows, row)
	})

	if len(headers) == 0 {
		if len(rows) == 0 {
			return nil, fmt.Errorf("htmltable: table %d is empty", index)
		}
		headers = rows[0]
		rows = rows[1:]
	}
	return dataset.FromStringRows(headers, rows)
}

func headerCells(table *goquery.Selection) []string {
	var headers []string
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(th.Text()))
	})
	return headers
}
