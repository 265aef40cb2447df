package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/queryline/queryline/internal/database"
	"github.com/queryline/queryline/internal/schema"
)

type stubBackend struct {
	explainErr error
	explained  []string
}

func (s *stubBackend) Dialect() string { return "postgres" }

func (s *stubBackend) Explain(ctx context.Context, query string) error {
	s.explained = append(s.explained, query)
	return s.explainErr
}

func (s *stubBackend) Query(ctx context.Context, query string) (database.Rows, error) {
	return nil, errors.New("stub: no query execution")
}

func (s *stubBackend) Ping(ctx context.Context) error { return nil }
func (s *stubBackend) Close() error                   { return nil }

func testCache() *schema.Cache {
	return schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{Name: "customers", Columns: []schema.RawColumn{
				{Name: "id"}, {Name: "risk_score"}, {Name: "region"},
			}},
			{Name: "transactions", Columns: []schema.RawColumn{
				{Name: "id"}, {Name: "customer_id"}, {Name: "amount"}, {Name: "created_at"},
			}},
		},
	}, 1)
}

func TestValidateAcceptsConformingSelect(t *testing.T) {
	backend := &stubBackend{}
	v := New(backend)

	verdict := v.Validate(context.Background(), "SELECT risk_score FROM customers WHERE risk_score > 700", testCache())
	if verdict.Status != Valid {
		t.Fatalf("verdict = %+v, want valid", verdict)
	}
	if len(backend.explained) != 1 || !strings.HasPrefix(backend.explained[0], "SELECT") {
		t.Errorf("explain calls = %v", backend.explained)
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := New(&stubBackend{})
	for _, sql := range []string{
		"DELETE FROM customers",
		"UPDATE customers SET risk_score = 0",
		"",
	} {
		verdict := v.Validate(context.Background(), sql, testCache())
		if verdict.Status != Fatal {
			t.Errorf("Validate(%q) = %v, want fatal", sql, verdict.Status)
		}
	}
}

func TestValidateRejectsInjection(t *testing.T) {
	backend := &stubBackend{}
	v := New(backend)

	verdict := v.Validate(context.Background(), "SELECT id FROM customers; DROP TABLE customers", testCache())
	if verdict.Status != Fatal {
		t.Fatalf("verdict = %+v, want fatal", verdict)
	}
	if len(backend.explained) != 0 {
		t.Error("dangerous SQL must never reach the backend")
	}
}

func TestValidateUnknownColumnNeverValid(t *testing.T) {
	backend := &stubBackend{} // explain would succeed
	v := New(backend)

	verdict := v.Validate(context.Background(), "SELECT creditworthiness FROM customers", testCache())
	if verdict.Status != Fixable {
		t.Fatalf("verdict = %+v, want fixable", verdict)
	}
	if !strings.Contains(verdict.Diagnostic, "creditworthiness") {
		t.Errorf("diagnostic should name the column: %q", verdict.Diagnostic)
	}
	if len(backend.explained) != 0 {
		t.Error("non-conforming SQL must not reach EXPLAIN")
	}
}

func TestValidateUnknownTable(t *testing.T) {
	v := New(&stubBackend{})
	verdict := v.Validate(context.Background(), "SELECT id FROM invoices", testCache())
	if verdict.Status != Fixable || !strings.Contains(verdict.Diagnostic, "invoices") {
		t.Errorf("verdict = %+v", verdict)
	}
}

func TestValidateQualifiedColumns(t *testing.T) {
	v := New(&stubBackend{})

	ok := "SELECT c.risk_score, t.amount FROM customers c JOIN transactions t ON t.customer_id = c.id"
	if verdict := v.Validate(context.Background(), ok, testCache()); verdict.Status != Valid {
		t.Errorf("join query rejected: %+v", verdict)
	}

	bad := "SELECT c.balance FROM customers c"
	verdict := v.Validate(context.Background(), bad, testCache())
	if verdict.Status != Fixable || !strings.Contains(verdict.Diagnostic, "balance") {
		t.Errorf("verdict = %+v", verdict)
	}
}

func TestValidateCTE(t *testing.T) {
	v := New(&stubBackend{})
	sql := `WITH high_risk AS (
		SELECT id, risk_score FROM customers WHERE risk_score > 700
	)
	SELECT count(id) FROM high_risk`
	if verdict := v.Validate(context.Background(), sql, testCache()); verdict.Status != Valid {
		t.Errorf("CTE query rejected: %+v", verdict)
	}
}

func TestValidateFromInsideFunctionCall(t *testing.T) {
	backend := &stubBackend{}
	v := New(backend)

	// FROM inside EXTRACT is an operand separator, not a table reference.
	sql := "SELECT EXTRACT(YEAR FROM created_at) AS yr, count(id) FROM transactions GROUP BY yr"
	verdict := v.Validate(context.Background(), sql, testCache())
	if verdict.Status != Valid {
		t.Fatalf("verdict = %+v, want valid", verdict)
	}
	if len(backend.explained) != 1 {
		t.Errorf("explain calls = %v", backend.explained)
	}
}

func TestExplainErrorClassification(t *testing.T) {
	tests := []struct {
		err    error
		status Status
	}{
		{errors.New(`syntax error at or near "FORM"`), Fixable},
		{errors.New(`column "riskscore" does not exist`), Fixable},
		{errors.New("Unrecognized name: riskscore at [1:8]"), Fixable},
		{errors.New("permission denied for table customers"), Fatal},
		{errors.New("connection refused"), Fatal},
	}
	for _, tt := range tests {
		v := New(&stubBackend{explainErr: tt.err})
		verdict := v.Validate(context.Background(), "SELECT risk_score FROM customers", testCache())
		if verdict.Status != tt.status {
			t.Errorf("explain err %q -> %v, want %v", tt.err, verdict.Status, tt.status)
		}
	}
}

func TestCancelledExplainIsFatal(t *testing.T) {
	v := New(&stubBackend{explainErr: context.DeadlineExceeded})
	verdict := v.Validate(context.Background(), "SELECT risk_score FROM customers", testCache())
	if verdict.Status != Fatal {
		t.Errorf("cancelled validation should not trigger regeneration: %+v", verdict)
	}
}
