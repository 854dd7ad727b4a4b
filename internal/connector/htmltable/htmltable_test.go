package htmltable

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qc/internal/connector"
	"qc/internal/dataset"
)

const twoTables = `<html><body>
<table>
  <tr><th>id</th><th> name </th></tr>
  <tr><td>1</td><td>alice</td></tr>
  <tr><td>2</td><td> bob </td></tr>
</table>
<table>
  <tr><td>city</td><td>pop</td></tr>
  <tr><td>berlin</td><td>3600000</td></tr>
</table>
</body></html>`

func TestRead_HeaderCells(t *testing.T) {
	ds, err := Read(strings.NewReader(twoTables), 0)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}

	cols := ds.Columns()
	if len(cols) != 2 || cols[0].Name != "id" || cols[1].Name != "name" {
		t.Fatalf("columns=%v, want [id name]", cols)
	}
	if cols[0].Type != dataset.TypeInteger {
		t.Fatalf("id type=%s, want integer", cols[0].Type)
	}
	if ds.NumRows() != 2 {
		t.Fatalf("NumRows()=%d, want 2", ds.NumRows())
	}
	// Cell text is trimmed.
	if got := ds.Cell(1, 1).String(); got != "bob" {
		t.Fatalf("cell(1,1)=%q, want bob", got)
	}
}

func TestRead_FirstRowFallback(t *testing.T) {
	// The second table has no <th> cells; its first row becomes the header.
	ds, err := Read(strings.NewReader(twoTables), 1)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	cols := ds.Columns()
	if len(cols) != 2 || cols[0].Name != "city" || cols[1].Name != "pop" {
		t.Fatalf("columns=%v, want [city pop]", cols)
	}
	if ds.NumRows() != 1 {
		t.Fatalf("NumRows()=%d, want 1", ds.NumRows())
	}
}

func TestRead_Errors(t *testing.T) {
	if _, err := Read(strings.NewReader(twoTables), 2); err == nil || !strings.Contains(err.Error(), "table 2 not found") {
		t.Fatalf("Read(index out of range) err=%v, want not found", err)
	}
	if _, err := Read(strings.NewReader("<html><body><table></table></body></html>"), 0); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("Read(empty table) err=%v, want empty", err)
	}
}

func TestConn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	if err := os.WriteFile(path, []byte(twoTables), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	c, err := New(ctx, connector.Config{Kind: "html", DSN: path})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	defer c.Close()

	// Empty query selects the first table; a number selects by index.
	ds, err := c.Query(ctx, "")
	if err != nil {
		t.Fatalf("Query() err=%v", err)
	}
	if ds.Columns()[0].Name != "id" {
		t.Fatalf("first column=%s, want id", ds.Columns()[0].Name)
	}

	ds, err = c.Query(ctx, " 1 ")
	if err != nil {
		t.Fatalf("Query(1) err=%v", err)
	}
	if ds.Columns()[0].Name != "city" {
		t.Fatalf("first column=%s, want city", ds.Columns()[0].Name)
	}

	if _, err := c.Query(ctx, "two"); err == nil {
		t.Fatal("Query(non-numeric) err=nil, want error")
	}
	if _, err := c.Query(ctx, "-1"); err == nil {
		t.Fatal("Query(-1) err=nil, want error")
	}

	schema, err := c.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema() err=%v", err)
	}
	tables, ok := schema["tables"].([]map[string]any)
	if !ok || len(tables) != 2 {
		t.Fatalf("schema=%v, want two tables", schema)
	}
	headers, _ := tables[0]["headers"].([]string)
	if len(headers) != 2 || headers[0] != "id" {
		t.Fatalf("table 0 headers=%v, want [id name]", headers)
	}
}

func TestNew_MissingFile(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, connector.Config{Kind: "html"}); err == nil {
		t.Fatal("New(no path) err=nil, want error")
	}
	if _, err := New(ctx, connector.Config{Kind: "html", DSN: filepath.Join(t.TempDir(), "nope.html")}); err == nil {
		t.Fatal("New(missing file) err=nil, want error")
	}
}
