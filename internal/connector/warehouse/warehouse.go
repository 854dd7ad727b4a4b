// Package warehouse loads datasets from SQL Server style warehouses over
// database/sql with the "sqlserver" driver.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"qc/internal/connector"
	"qc/internal/dataset"
)

type Conn struct {
	db *sql.DB
}

func init() {
	connector.Register("warehouse", New)
}

func New(ctx context.Context, cfg connector.Config) (connector.Connector, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("warehouse: ping: %w", err)
	}
	return &Conn{db: db}, nil
}

func (c *Conn) Close() { _ = c.db.Close() }

func (c *Conn) Query(ctx context.Context, query string) (*dataset.Dataset, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("warehouse: query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range vals {
			scan[i] = &vals[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("warehouse: scan: %w", err)
		}
		// TEXT columns commonly scan as []byte through database/sql.
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: read: %w", err)
	}
	return dataset.FromValues(columns, data)
}

// Schema lists tables and columns from INFORMATION_SCHEMA.
func (c *Conn) Schema(ctx context.Context) (map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		ORDER BY TABLE_NAME, ORDINAL_POSITION`)
	if err != nil {
		return nil, fmt.Errorf("warehouse: schema: %w", err)
	}
	defer rows.Close()

	tables := map[string][]map[string]string{}
	for rows.Next() {
		var table, column, dtype string
		if err := rows.Scan(&table, &column, &dtype); err != nil {
			return nil, err
		}
		tables[table] = append(tables[table], map[string]string{
			"name": column,
			"type": dtype,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables}, nil
}
