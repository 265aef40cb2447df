package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQuery is a Backend over a BigQuery project. Explain maps to a dry-run
// job, which is BigQuery's native static validation: it parses, resolves
// references and prices the query without executing it.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	location  string
}

func NewBigQuery(ctx context.Context, projectID, credentialsFile, location string) (*BigQuery, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &BigQuery{client: client, projectID: projectID, location: location}, nil
}

func (b *BigQuery) Dialect() string { return "bigquery" }

// Client exposes the underlying client for schema introspection.
func (b *BigQuery) Client() *bigquery.Client { return b.client }

func (b *BigQuery) Explain(ctx context.Context, sql string) error {
	q := b.client.Query(sql)
	q.DryRun = true
	if b.location != "" {
		q.Location = b.location
	}
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}
	if err := job.LastStatus().Err(); err != nil {
		return fmt.Errorf("dry run status: %w", err)
	}
	return nil
}

func (b *BigQuery) Query(ctx context.Context, sql string) (Rows, error) {
	q := b.client.Query(sql)
	if b.location != "" {
		q.Location = b.location
	}
	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("job wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("job read: %w", err)
	}
	rows, err := newBQRows(bqIterator{it})
	if err != nil {
		return nil, fmt.Errorf("read first row: %w", err)
	}
	return rows, nil
}

func (b *BigQuery) Ping(ctx context.Context) error {
	q := b.client.Query("SELECT 1")
	q.DryRun = true
	_, err := q.Run(ctx)
	return err
}

func (b *BigQuery) Close() error { return b.client.Close() }

// rowSource narrows bigquery.RowIterator to what bqRows needs.
type rowSource interface {
	Next(dst *map[string]bigquery.Value) error
	Schema() bigquery.Schema
}

type bqIterator struct{ it *bigquery.RowIterator }

func (a bqIterator) Next(dst *map[string]bigquery.Value) error { return a.it.Next(dst) }
func (a bqIterator) Schema() bigquery.Schema                   { return a.it.Schema }

type bqRows struct {
	src      rowSource
	current  map[string]bigquery.Value
	buffered map[string]bigquery.Value
	primed   bool
	cols     []string
	err      error
	done     bool
}

// newBQRows fetches the first row up front: the iterator only learns the
// schema after a fetch, and Columns must be valid even for empty results.
func newBQRows(src rowSource) (*bqRows, error) {
	r := &bqRows{src: src}
	var row map[string]bigquery.Value
	switch err := src.Next(&row); {
	case err == iterator.Done:
		r.done = true
	case err != nil:
		return nil, err
	default:
		r.buffered = row
		r.primed = true
	}
	for _, f := range src.Schema() {
		r.cols = append(r.cols, f.Name)
	}
	return r, nil
}

func (r *bqRows) Columns() []string { return r.cols }

func (r *bqRows) Next() bool {
	if r.primed {
		r.current = r.buffered
		r.buffered = nil
		r.primed = false
		return true
	}
	if r.done {
		return false
	}
	var row map[string]bigquery.Value
	err := r.src.Next(&row)
	if err == iterator.Done {
		r.done = true
		return false
	}
	if err != nil {
		r.err = err
		r.done = true
		return false
	}
	r.current = row
	return true
}

func (r *bqRows) Row() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(r.current))
	for k, v := range r.current {
		out[k] = v
	}
	return out, nil
}

func (r *bqRows) Err() error { return r.err }

func (r *bqRows) Close() error { return nil }
