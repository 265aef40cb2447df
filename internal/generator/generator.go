// Package generator turns a clipped schema context and a resolved intent
// into candidate SQL text via an isolated completion interface.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/clipper"
	"github.com/queryline/queryline/internal/conversation"
)

// Generator produces candidate SQL. Prompt rendering is deterministic; the
// completion call is the only non-deterministic step and is retried with
// exponential backoff on transport failures.
type Generator struct {
	completer Completer
	patterns  []DomainPattern
	dialect   string
	retries   int
}

func New(completer Completer, patterns []DomainPattern, dialect string, retries int) *Generator {
	return &Generator{
		completer: completer,
		patterns:  patterns,
		dialect:   dialect,
		retries:   retries,
	}
}

// Generate renders the prompt and returns the extracted SQL. diagnostic is
// non-empty on a regeneration round and carries the validator's finding
// from the previous attempt.
func (g *Generator) Generate(
	ctx context.Context,
	clipped clipper.ClippedContext,
	intent conversation.Intent,
	question string,
	diagnostic string,
) (string, error) {
	matched := MatchPatterns(question, g.patterns)
	prompt := renderPrompt(clipped, intent, question, matched, diagnostic)

	var output string
	op := func() error {
		text, err := g.completer.Complete(ctx, SystemPrompt(g.dialect), prompt)
		if err != nil {
			log.Warn().Err(err).Msg("completion failed, may retry")
			return err
		}
		output = text
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.retries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}

	sql := ExtractSQL(output)
	if sql == "" {
		return "", fmt.Errorf("generate sql: completion contained no SQL (got %q)", preview(output))
	}

	log.Debug().
		Int("patterns_surfaced", len(matched)).
		Str("sql_preview", preview(sql)).
		Msg("sql generated")

	return sql, nil
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
