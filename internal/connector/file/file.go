// Package file loads datasets from delimited text files. The query string is
// ignored; the DSN is the file path.
package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"qc/internal/connector"
	"qc/internal/dataset"
)

type Conn struct {
	path string
}

func init() {
	connector.Register("file", New)
}

func New(ctx context.Context, cfg connector.Config) (connector.Connector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("file: path is required")
	}
	info, err := os.Stat(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("file: %s is a directory", cfg.DSN)
	}
	return &Conn{path: cfg.DSN}, nil
}

func (c *Conn) Close() {}

func (c *Conn) Query(ctx context.Context, _ string) (*dataset.Dataset, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	defer f.Close()
	return Read(f, delimiterFor(c.path))
}

func (c *Conn) Schema(ctx context.Context) (map[string]any, error) {
	ds, err := c.Query(ctx, "")
	if err != nil {
		return nil, err
	}
	cols := make([]map[string]string, 0, ds.NumCols())
	for _, col := range ds.Columns() {
		cols = append(cols, map[string]string{
			"name": col.Name,
			"type": string(col.Type),
		})
	}
	return map[string]any{
		"file":      filepath.Base(c.path),
		"columns":   cols,
		"row_count": ds.NumRows(),
	}, nil
}

// Read parses delimited text into a typed dataset. The first record is the
// header; column types are inferred from the data.
func Read(r io.Reader, comma rune) (*dataset.Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("file: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("file: read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, rec)
	}
	return dataset.FromStringRows(header, rows)
}

func delimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}
