package executor

import (
	"errors"
	"sync"
)

var (
	// ErrPageOutOfRange means the page index is beyond the result.
	ErrPageOutOfRange = errors.New("executor: page index out of range")
	// ErrResultNotFound means no result set exists for the interaction.
	ErrResultNotFound = errors.New("executor: result not found")
)

// Row is one result row keyed by column name.
type Row = map[string]interface{}

// ResultSet holds an execution result grouped into fixed-size pages. Full
// pages are flushed while the query streams; the final partial page stays
// in the buffer and is written through lazily on first read. Once complete,
// the row content never changes — reads are repeatable.
type ResultSet struct {
	mu        sync.Mutex
	columns   []string
	pageSize  int
	pages     [][]Row
	buffer    []Row
	totalRows int
	complete  bool
}

func newResultSet(columns []string, pageSize int) *ResultSet {
	return &ResultSet{columns: columns, pageSize: pageSize}
}

// append adds a streamed row, flushing a page whenever the buffer fills.
func (rs *ResultSet) append(row Row) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.buffer = append(rs.buffer, row)
	rs.totalRows++
	if len(rs.buffer) >= rs.pageSize {
		rs.pages = append(rs.pages, rs.buffer)
		rs.buffer = nil
	}
}

// finish seals the result. The trailing partial page stays buffered until
// a reader asks for it.
func (rs *ResultSet) finish() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.complete = true
}

// Page returns the rows of one page. A not-yet-materialized trailing page
// is written through from the buffer rather than re-executing anything.
func (rs *ResultSet) Page(index int) ([]Row, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if index < 0 {
		return nil, ErrPageOutOfRange
	}
	if index < len(rs.pages) {
		return rs.pages[index], nil
	}
	if rs.complete && index == len(rs.pages) && len(rs.buffer) > 0 {
		rs.pages = append(rs.pages, rs.buffer)
		rs.buffer = nil
		return rs.pages[index], nil
	}
	return nil, ErrPageOutOfRange
}

// Columns returns the result column names.
func (rs *ResultSet) Columns() []string { return rs.columns }

// TotalRows is recorded once at write time.
func (rs *ResultSet) TotalRows() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.totalRows
}

// PageSize is fixed at write time, independent of any UI page size.
func (rs *ResultSet) PageSize() int { return rs.pageSize }

// PageCount returns the number of pages the full result occupies.
func (rs *ResultSet) PageCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.totalRows == 0 {
		return 0
	}
	return (rs.totalRows + rs.pageSize - 1) / rs.pageSize
}
