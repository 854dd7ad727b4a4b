// Package postgres loads datasets from PostgreSQL using a pgx pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"qc/internal/connector"
	"qc/internal/dataset"
)

type Conn struct {
	pool *pgxpool.Pool
}

func init() {
	connector.Register("postgres", New)
}

func New(ctx context.Context, cfg connector.Config) (connector.Connector, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Conn{pool: pool}, nil
}

func (c *Conn) Close() { c.pool.Close() }

func (c *Conn) Query(ctx context.Context, query string) (*dataset.Dataset, error) {
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var data [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read: %w", err)
	}
	return dataset.FromValues(columns, data)
}

// Schema lists the tables and columns visible in the public schema.
func (c *Conn) Schema(ctx context.Context) (map[string]any, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: schema: %w", err)
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
