// Package composer turns a result set and the original question into a
// natural-language answer. Composition is best-effort: when the completion
// fails, the caller still gets the raw tabular result, never a blocked
// pipeline.
package composer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/executor"
	"github.com/queryline/queryline/internal/generator"
)

const composeSystem = `You explain query results to business users.
Answer the question directly in one short paragraph using only the rows
provided. Mention concrete numbers. Do not mention SQL or the schema.`

// maxRowsInPrompt bounds how much of the result reaches the completion.
const maxRowsInPrompt = 20

type Composer struct {
	completer generator.Completer
}

func New(completer generator.Completer) *Composer {
	return &Composer{completer: completer}
}

// Compose answers the question from the rows. On any completion failure it
// degrades to a plain tabular rendering of the same rows.
func (c *Composer) Compose(ctx context.Context, question string, columns []string, rows []executor.Row) string {
	prompt := renderComposePrompt(question, columns, rows)

	text, err := c.completer.Complete(ctx, composeSystem, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("compose failed, returning tabular result")
		return Tabular(columns, rows)
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return Tabular(columns, rows)
	}
	return answer
}

func renderComposePrompt(question string, columns []string, rows []executor.Row) string {
	var sb strings.Builder
	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n## Result rows\n")
	sb.WriteString(Tabular(columns, rows))
	if len(rows) > maxRowsInPrompt {
		fmt.Fprintf(&sb, "\n(%d rows total, first %d shown)\n", len(rows), maxRowsInPrompt)
	}
	return sb.String()
}

// Tabular renders rows as a plain text table, the degraded-mode answer.
func Tabular(columns []string, rows []executor.Row) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(columns, " | "))
	sb.WriteString("\n")

	n := len(rows)
	if n > maxRowsInPrompt {
		n = maxRowsInPrompt
	}
	for _, row := range rows[:n] {
		vals := make([]string, 0, len(columns))
		for _, col := range columns {
			vals = append(vals, fmt.Sprintf("%v", row[col]))
		}
		sb.WriteString(strings.Join(vals, " | "))
		sb.WriteString("\n")
	}
	if len(rows) == 0 {
		sb.WriteString("(no rows)\n")
	}
	return sb.String()
}
