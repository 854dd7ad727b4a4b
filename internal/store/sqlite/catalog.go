// Package sqlite persists the data-source catalog, connection credentials,
// and settings in a local SQLite database.
//
// Timestamps are stored as RFC3339Nano strings for reliable round-trip
// behavior with modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"qc/internal/store"
)

// Catalog is the persistent backing store. Safe for concurrent use; the
// underlying *sql.DB pools connections.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	c := &Catalog{db: db}
	if err := c.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) Close() { _ = c.db.Close() }

func (c *Catalog) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  type TEXT NOT NULL,
  name TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE(type, name)
);`,
		`CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS data_sources (
  source_id TEXT PRIMARY KEY,
  source_name TEXT NOT NULL,
  source_type TEXT NOT NULL,
  columns TEXT NOT NULL,
  row_count INTEGER NOT NULL,
  query TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS source_data (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source_id TEXT NOT NULL,
  row_data TEXT NOT NULL,
  FOREIGN KEY (source_id) REFERENCES data_sources(source_id) ON DELETE CASCADE
);`,
		`CREATE INDEX IF NOT EXISTS idx_source_data_source_id ON source_data(source_id);`,
	}
	for _, s := range stmts {
		if _, err := c.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// ---- credentials ----

// SaveCredential upserts a named credential payload under a type
// ("postgres", "warehouse", ...). The payload is stored as JSON.
func (c *Catalog) SaveCredential(ctx context.Context, credType, name string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sqlite: marshal credential %s/%s: %w", credType, name, err)
	}
	now := formatTime(time.Now())
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO credentials (type, name, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, name) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		credType, name, string(raw), now, now)
	return err
}

func (c *Catalog) GetCredential(ctx context.Context, credType, name string) (map[string]any, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM credentials WHERE type = ? AND name = ?`,
		credType, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("sqlite: decode credential %s/%s: %w", credType, name, err)
	}
	return data, nil
}

func (c *Catalog) ListCredentials(ctx context.Context, credType string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM credentials WHERE type = ? ORDER BY name`, credType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (c *Catalog) DeleteCredential(ctx context.Context, credType, name string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE type = ? AND name = ?`, credType, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- settings ----

func (c *Catalog) SetSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: marshal setting %s: %w", key, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, string(raw), formatTime(time.Now()))
	return err
}

// GetSetting decodes the stored value into out. Returns store.ErrNotFound
// when the key has never been set.
func (c *Catalog) GetSetting(ctx context.Context, key string, out any) error {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// ---- data sources ----

// SourceMeta describes one saved data source without its rows.
type SourceMeta struct {
	SourceID   string   `json:"source_id"`
	SourceName string   `json:"source_name"`
	SourceType string   `json:"source"`
	Columns    []string `json:"columns"`
	RowCount   int      `json:"row_count"`
	Query      string   `json:"query,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// SaveDataSource replaces the saved source under id with the given metadata
// and rows. Rows are stored one JSON object per record in a single
// transaction.
func (c *Catalog) SaveDataSource(ctx context.Context, meta SourceMeta, records []map[string]any) error {
	cols, err := json.Marshal(meta.Columns)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_data WHERE source_id = ?`, meta.SourceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM data_sources WHERE source_id = ?`, meta.SourceID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO data_sources (source_id, source_name, source_type, columns, row_count, query, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.SourceID, meta.SourceName, meta.SourceType, string(cols),
		len(records), nullIfEmpty(meta.Query), formatTime(time.Now())); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO source_data (source_id, row_data) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("sqlite: marshal row for %s: %w", meta.SourceID, err)
		}
		if _, err := stmt.ExecContext(ctx, meta.SourceID, string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetDataSource loads one saved source with its rows in insertion order.
func (c *Catalog) GetDataSource(ctx context.Context, sourceID string) (SourceMeta, []map[string]any, error) {
	meta, err := c.scanMeta(ctx, sourceID)
	if err != nil {
		return SourceMeta{}, nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT row_data FROM source_data WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return SourceMeta{}, nil, err
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return SourceMeta{}, nil, err
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return SourceMeta{}, nil, fmt.Errorf("sqlite: decode row for %s: %w", sourceID, err)
		}
		records = append(records, rec)
	}
	return meta, records, rows.Err()
}

func (c *Catalog) scanMeta(ctx context.Context, sourceID string) (SourceMeta, error) {
	var m SourceMeta
	var cols string
	var query sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT source_id, source_name, source_type, columns, row_count, query, created_at
		FROM data_sources WHERE source_id = ?`, sourceID).
		Scan(&m.SourceID, &m.SourceName, &m.SourceType, &cols, &m.RowCount, &query, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SourceMeta{}, store.ErrNotFound
	}
	if err != nil {
		return SourceMeta{}, err
	}
	if err := json.Unmarshal([]byte(cols), &m.Columns); err != nil {
		return SourceMeta{}, fmt.Errorf("sqlite: decode columns for %s: %w", sourceID, err)
	}
	m.Query = query.String
	return m, nil
}

// ListDataSources returns metadata for every saved source, newest first.
func (c *Catalog) ListDataSources(ctx context.Context) ([]SourceMeta, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT source_id, source_name, source_type, columns, row_count, query, created_at
		FROM data_sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceMeta
	for rows.Next() {
		var m SourceMeta
		var cols string
		var query sql.NullString
		if err := rows.Scan(&m.SourceID, &m.SourceName, &m.SourceType, &cols, &m.RowCount, &query, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cols), &m.Columns); err != nil {
			return nil, fmt.Errorf("sqlite: decode columns for %s: %w", m.SourceID, err)
		}
		m.Query = query.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *Catalog) DeleteDataSource(ctx context.Context, sourceID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_data WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM data_sources WHERE source_id = ?`, sourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (c *Catalog) RenameDataSource(ctx context.Context, sourceID, newName string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE data_sources SET source_name = ? WHERE source_id = ?`, newName, sourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UniqueSourceName appends " (1)", " (2)", ... until the name is unused.
func (c *Catalog) UniqueSourceName(ctx context.Context, base string) (string, error) {
	sources, err := c.ListDataSources(ctx)
	if err != nil {
		return "", err
	}
	existing := make(map[string]bool, len(sources))
	for _, s := range sources {
		existing[s.SourceName] = true
	}
	if !existing[base] {
		return base, nil
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s (%d)", base, i)
		if !existing[name] {
			return name, nil
		}
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
