// Package executor runs validated SQL against the configured backend and
// stores the result grouped into fixed-size pages keyed by interaction id.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/database"
)

const resultTTL = 30 * time.Minute

// Handle summarizes a stored result set for the caller.
type Handle struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	Columns       []string  `json:"columns"`
	TotalRows     int       `json:"total_rows"`
	PageSize      int       `json:"page_size"`
	PageCount     int       `json:"page_count"`
}

// Executor executes queries and serves stored pages. Stored results expire
// after a TTL; they are immutable while present.
type Executor struct {
	backend  database.Backend
	results  *ttlcache.Cache[uuid.UUID, *ResultSet]
	pageSize int
}

func New(backend database.Backend, pageSize int) *Executor {
	cache := ttlcache.New[uuid.UUID, *ResultSet](
		ttlcache.WithTTL[uuid.UUID, *ResultSet](resultTTL),
	)
	go cache.Start()
	return &Executor{
		backend:  backend,
		results:  cache,
		pageSize: pageSize,
	}
}

// Execute runs the SQL, buffers the rows into fixed-size pages and stores
// the completed result under the interaction id.
// The SQL must already have passed validation; the executor does not
// re-check it.
func (e *Executor) Execute(ctx context.Context, sql string, interactionID uuid.UUID) (Handle, error) {
	start := time.Now()

	rows, err := e.backend.Query(ctx, sql)
	if err != nil {
		return Handle{}, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	// The result set is stored only after the full read succeeds; a query
	// that fails mid-stream leaves nothing retrievable behind.
	rs := newResultSet(rows.Columns(), e.pageSize)
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return Handle{}, fmt.Errorf("read row: %w", err)
		}
		rs.append(row)
	}
	if err := rows.Err(); err != nil {
		return Handle{}, fmt.Errorf("iterate rows: %w", err)
	}
	rs.finish()
	e.results.Set(interactionID, rs, ttlcache.DefaultTTL)

	h := Handle{
		InteractionID: interactionID,
		Columns:       rs.Columns(),
		TotalRows:     rs.TotalRows(),
		PageSize:      rs.PageSize(),
		PageCount:     rs.PageCount(),
	}

	log.Info().
		Str("interaction_id", interactionID.String()).
		Int("rows", h.TotalRows).
		Int("pages", h.PageCount).
		Dur("duration", time.Since(start)).
		Msg("query executed")

	return h, nil
}

// GetPage returns one stored page. It never re-executes the query.
func (e *Executor) GetPage(interactionID uuid.UUID, pageIndex int) ([]Row, error) {
	item := e.results.Get(interactionID)
	if item == nil {
		return nil, ErrResultNotFound
	}
	return item.Value().Page(pageIndex)
}

// Metadata returns the handle for a stored result.
func (e *Executor) Metadata(interactionID uuid.UUID) (Handle, error) {
	item := e.results.Get(interactionID)
	if item == nil {
		return Handle{}, ErrResultNotFound
	}
	rs := item.Value()
	return Handle{
		InteractionID: interactionID,
		Columns:       rs.Columns(),
		TotalRows:     rs.TotalRows(),
		PageSize:      rs.PageSize(),
		PageCount:     rs.PageCount(),
	}, nil
}

// Close stops the expiry loop.
func (e *Executor) Close() {
	e.results.Stop()
}
