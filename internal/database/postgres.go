package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Postgres is a Backend over a Postgres database via the pgx stdlib driver.
// Going through database/sql keeps the executor testable with sqlmock.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle; used by tests and by callers
// that manage the pool themselves.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Dialect() string { return "postgres" }

// DB exposes the underlying handle for schema introspection.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Explain(ctx context.Context, query string) error {
	rows, err := p.db.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		// Plan text is irrelevant; producing it without error is the check.
	}
	return rows.Err()
}

func (p *Postgres) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns: %w", err)
	}
	return &sqlRows{rows: rows, cols: cols}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

type sqlRows struct {
	rows *sql.Rows
	cols []string
}

func (r *sqlRows) Columns() []string { return r.cols }

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Row() (map[string]interface{}, error) {
	vals := make([]interface{}, len(r.cols))
	ptrs := make([]interface{}, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	row := make(map[string]interface{}, len(r.cols))
	for i, c := range r.cols {
		if b, ok := vals[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = vals[i]
	}
	return row, nil
}

func (r *sqlRows) Err() error { return r.rows.Err() }

func (r *sqlRows) Close() error { return r.rows.Close() }
