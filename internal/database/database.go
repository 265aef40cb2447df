// Package database abstracts the execution backend behind a narrow
// interface: a static plan check and a streaming query. The pipeline never
// talks to a driver directly.
package database

import "context"

// Rows is a streaming cursor over a query result. Implementations own the
// underlying driver resources until Close.
type Rows interface {
	// Columns returns the result column names, available after the first
	// call regardless of row count.
	Columns() []string
	// Next advances to the next row, returning false at the end or on error.
	Next() bool
	// Row returns the current row keyed by column name.
	Row() (map[string]interface{}, error)
	// Err reports any error that terminated iteration.
	Err() error
	Close() error
}

// Backend is a SQL execution backend.
type Backend interface {
	// Dialect names the SQL dialect ("postgres", "bigquery") for prompt
	// rendering and diagnostics.
	Dialect() string
	// Explain statically checks the query against the live backend
	// without executing it (EXPLAIN / dry-run). A nil error means the
	// backend would accept the query.
	Explain(ctx context.Context, sql string) error
	// Query executes the SQL and streams rows.
	Query(ctx context.Context, sql string) (Rows, error)
	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error
	Close() error
}
