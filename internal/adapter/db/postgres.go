package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smart-query/internal/domain"
)

// maxQueryRows bounds how many rows a single analytics query returns to the
// model.
const maxQueryRows = 1000

// Column describes one column of a table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// SchemaReader provides read access to database metadata.
type SchemaReader interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	TableColumns(ctx context.Context, schema, table string) ([]Column, error)
}

// QueryRunner executes read-only queries scoped to a schema.
type QueryRunner interface {
	RunQuery(ctx context.Context, schema, query string) ([]map[string]any, error)
}

// Postgres wraps a pgx connection pool with the metadata and query
// operations the SQL tools need.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a connection pool against the given DSN and verifies it.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrDatabaseQuery, err)
	}

	logger.Info("database connected", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ListTables returns the base table names in the schema, sorted.
func (p *Postgres) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", domain.ErrDatabaseQuery, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan table name: %v", domain.ErrDatabaseQuery, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", domain.ErrDatabaseQuery, err)
	}
	return tables, nil
}

// TableColumns returns the columns of one table in ordinal order.
func (p *Postgres) TableColumns(ctx context.Context, schema, table string) ([]Column, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT column_name, data_type, is_nullable FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("%w: table columns: %v", domain.ErrDatabaseQuery, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("%w: scan column: %v", domain.ErrDatabaseQuery, err)
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: table columns: %v", domain.ErrDatabaseQuery, err)
	}
	return cols, nil
}

// RunQuery executes a query inside a read-only transaction with the search
// path pinned to the schema, and returns the rows as maps keyed by column.
func (p *Postgres) RunQuery(ctx context.Context, schema, query string) ([]map[string]any, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrDatabaseQuery, err)
	}
	defer tx.Rollback(ctx)

	// SET LOCAL scopes the search path to this transaction only.
	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return nil, fmt.Errorf("%w: set search_path: %v", domain.ErrDatabaseQuery, err)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrDatabaseQuery, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		if len(out) >= maxQueryRows {
			p.logger.Warn("query result truncated", "max_rows", maxQueryRows)
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %v", domain.ErrDatabaseQuery, err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrDatabaseQuery, err)
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrDatabaseQuery, err)
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ SchemaReader = (*Postgres)(nil)
	_ QueryRunner  = (*Postgres)(nil)
)
