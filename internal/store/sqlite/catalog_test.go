package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"qc/internal/store"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open(%s) err=%v", path, err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCredentials(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	if err := c.SaveCredential(ctx, "postgres", "prod", map[string]any{"host": "db1", "port": 5432.0}); err != nil {
		t.Fatalf("SaveCredential() err=%v", err)
	}

	got, err := c.GetCredential(ctx, "postgres", "prod")
	if err != nil {
		t.Fatalf("GetCredential() err=%v", err)
	}
	if got["host"] != "db1" || got["port"] != 5432.0 {
		t.Fatalf("credential=%v, want host=db1 port=5432", got)
	}

	// Upsert replaces the payload under the same type/name.
	if err := c.SaveCredential(ctx, "postgres", "prod", map[string]any{"host": "db2"}); err != nil {
		t.Fatalf("SaveCredential() upsert err=%v", err)
	}
	got, _ = c.GetCredential(ctx, "postgres", "prod")
	if got["host"] != "db2" {
		t.Fatalf("credential after upsert=%v, want host=db2", got)
	}

	// Same name under a different type is a separate credential.
	if err := c.SaveCredential(ctx, "warehouse", "prod", map[string]any{"host": "w1"}); err != nil {
		t.Fatalf("SaveCredential() err=%v", err)
	}
	names, err := c.ListCredentials(ctx, "postgres")
	if err != nil {
		t.Fatalf("ListCredentials() err=%v", err)
	}
	if !reflect.DeepEqual(names, []string{"prod"}) {
		t.Fatalf("ListCredentials(postgres)=%v, want [prod]", names)
	}

	if err := c.DeleteCredential(ctx, "postgres", "prod"); err != nil {
		t.Fatalf("DeleteCredential() err=%v", err)
	}
	if _, err := c.GetCredential(ctx, "postgres", "prod"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetCredential() after delete err=%v, want ErrNotFound", err)
	}
	if err := c.DeleteCredential(ctx, "postgres", "prod"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("DeleteCredential() twice err=%v, want ErrNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	var out map[string]any
	if err := c.GetSetting(ctx, "theme", &out); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetSetting(unset) err=%v, want ErrNotFound", err)
	}

	if err := c.SetSetting(ctx, "theme", map[string]any{"mode": "dark"}); err != nil {
		t.Fatalf("SetSetting() err=%v", err)
	}
	if err := c.GetSetting(ctx, "theme", &out); err != nil {
		t.Fatalf("GetSetting() err=%v", err)
	}
	if out["mode"] != "dark" {
		t.Fatalf("setting=%v, want mode=dark", out)
	}

	// Scalars round-trip as well.
	if err := c.SetSetting(ctx, "limit", 25); err != nil {
		t.Fatalf("SetSetting() err=%v", err)
	}
	var limit int
	if err := c.GetSetting(ctx, "limit", &limit); err != nil || limit != 25 {
		t.Fatalf("GetSetting(limit)=(%d,%v), want (25,nil)", limit, err)
	}
}

func TestDataSources(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	meta := SourceMeta{
		SourceID:   "src-1",
		SourceName: "orders",
		SourceType: "file",
		Columns:    []string{"id", "amount"},
		Query:      "",
	}
	records := []map[string]any{
		{"id": 1.0, "amount": 100.0},
		{"id": 2.0, "amount": 200.0},
	}
	if err := c.SaveDataSource(ctx, meta, records); err != nil {
		t.Fatalf("SaveDataSource() err=%v", err)
	}

	gotMeta, gotRecords, err := c.GetDataSource(ctx, "src-1")
	if err != nil {
		t.Fatalf("GetDataSource() err=%v", err)
	}
	if gotMeta.SourceName != "orders" || gotMeta.RowCount != 2 {
		t.Fatalf("meta=%+v, want orders with 2 rows", gotMeta)
	}
	if !reflect.DeepEqual(gotMeta.Columns, []string{"id", "amount"}) {
		t.Fatalf("columns=%v, want [id amount]", gotMeta.Columns)
	}
	if len(gotRecords) != 2 || gotRecords[0]["id"] != 1.0 {
		t.Fatalf("records=%v, want 2 rows in insertion order", gotRecords)
	}
	if gotMeta.CreatedAt == "" {
		t.Fatal("CreatedAt not set")
	}

	// Saving under the same id replaces rows, not appends.
	if err := c.SaveDataSource(ctx, meta, records[:1]); err != nil {
		t.Fatalf("SaveDataSource() replace err=%v", err)
	}
	_, gotRecords, _ = c.GetDataSource(ctx, "src-1")
	if len(gotRecords) != 1 {
		t.Fatalf("records after replace=%d, want 1", len(gotRecords))
	}

	if err := c.RenameDataSource(ctx, "src-1", "orders 2024"); err != nil {
		t.Fatalf("RenameDataSource() err=%v", err)
	}
	gotMeta, _, _ = c.GetDataSource(ctx, "src-1")
	if gotMeta.SourceName != "orders 2024" {
		t.Fatalf("name=%q, want renamed", gotMeta.SourceName)
	}

	list, err := c.ListDataSources(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDataSources()=(%v,%v), want one source", list, err)
	}

	if err := c.DeleteDataSource(ctx, "src-1"); err != nil {
		t.Fatalf("DeleteDataSource() err=%v", err)
	}
	if _, _, err := c.GetDataSource(ctx, "src-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetDataSource() after delete err=%v, want ErrNotFound", err)
	}
	if err := c.DeleteDataSource(ctx, "src-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("DeleteDataSource() twice err=%v, want ErrNotFound", err)
	}
	if err := c.RenameDataSource(ctx, "src-1", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("RenameDataSource(missing) err=%v, want ErrNotFound", err)
	}
}

func TestUniqueSourceName(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	name, err := c.UniqueSourceName(ctx, "orders")
	if err != nil || name != "orders" {
		t.Fatalf("UniqueSourceName()=(%q,%v), want (orders,nil)", name, err)
	}

	save := func(id, name string) {
		t.Helper()
		err := c.SaveDataSource(ctx, SourceMeta{
			SourceID: id, SourceName: name, SourceType: "file", Columns: []string{"a"},
		}, nil)
		if err != nil {
			t.Fatalf("SaveDataSource(%s) err=%v", id, err)
		}
	}
	save("s1", "orders")
	name, err = c.UniqueSourceName(ctx, "orders")
	if err != nil || name != "orders (1)" {
		t.Fatalf("UniqueSourceName()=(%q,%v), want (orders (1),nil)", name, err)
	}

	save("s2", "orders (1)")
	name, err = c.UniqueSourceName(ctx, "orders")
	if err != nil || name != "orders (2)" {
		t.Fatalf("UniqueSourceName()=(%q,%v), want (orders (2),nil)", name, err)
	}
}
