// Package validator statically checks candidate SQL before anything reaches
// the database: a read-only guard, schema conformance against the full
// schema, and a backend plan check. No query executes unless validation
// returned Valid — that holds even under regeneration pressure.
package validator

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/database"
	"github.com/queryline/queryline/internal/schema"
)

// Status classifies a validation result.
type Status string

const (
	Valid Status = "valid"
	// Fixable means regeneration with the diagnostic may succeed
	// (unknown column, syntax error with a clear message).
	Fixable Status = "invalid_fixable"
	// Fatal means the query must not run and regeneration is pointless
	// or forbidden (non-SELECT, injection pattern, backend refusal).
	Fatal Status = "invalid_fatal"
)

// Verdict is the typed outcome of one validation pass.
type Verdict struct {
	Status     Status
	Diagnostic string
}

type Validator struct {
	backend database.Backend
}

func New(backend database.Backend) *Validator {
	return &Validator{backend: backend}
}

// Validate runs the three checks in order of cost: guard, conformance,
// EXPLAIN. The conformance check runs against the full schema so that a
// clipping omission shows up as a diagnostic, not a false rejection.
func (v *Validator) Validate(ctx context.Context, sql string, cache *schema.Cache) Verdict {
	if reason := guard(sql); reason != "" {
		return Verdict{Status: Fatal, Diagnostic: reason}
	}

	if diag := checkConformance(sql, cache); diag != "" {
		return Verdict{Status: Fixable, Diagnostic: diag}
	}

	if err := v.backend.Explain(ctx, sql); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Verdict{Status: Fatal, Diagnostic: "validation cancelled: " + err.Error()}
		}
		verdict := classifyExplainError(err)
		log.Debug().
			Str("status", string(verdict.Status)).
			Str("diagnostic", verdict.Diagnostic).
			Msg("explain rejected query")
		return verdict
	}

	return Verdict{Status: Valid}
}

// classifyExplainError decides whether a backend rejection is worth a
// regeneration round. Reference and syntax errors carry a usable
// diagnostic; permission or connectivity failures do not.
func classifyExplainError(err error) Verdict {
	msg := err.Error()
	lower := strings.ToLower(msg)
	fixable := strings.Contains(lower, "syntax") ||
		strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "unrecognized name") ||
		strings.Contains(lower, "ambiguous") ||
		strings.Contains(lower, "no such column") ||
		strings.Contains(lower, "undefined")
	if fixable {
		return Verdict{Status: Fixable, Diagnostic: msg}
	}
	return Verdict{Status: Fatal, Diagnostic: msg}
}
