package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/queryline/queryline/internal/clipper"
	"github.com/queryline/queryline/internal/conversation"
)

const systemPrompt = `You are a SQL generation engine for a %s database.

RULES:
1. Generate exactly one SELECT query - never INSERT, UPDATE, DELETE, DROP, or DDL
2. Use only the tables and columns listed in the schema context
3. Always add a LIMIT clause (max 1000 rows) unless the question aggregates to a few rows
4. Wrap your final SQL in a code block exactly like this:
` + "```sql\nSELECT ...\n```" + `
5. Do not explain the query; output only the code block`

// SystemPrompt renders the fixed system prompt for a dialect.
func SystemPrompt(dialect string) string {
	return fmt.Sprintf(systemPrompt, dialect)
}

// renderPrompt produces the user prompt. Rendering is deterministic for
// identical inputs: the clipped context is already sorted and maps are
// walked in key order.
func renderPrompt(
	ctx clipper.ClippedContext,
	intent conversation.Intent,
	question string,
	patterns []DomainPattern,
	diagnostic string,
) string {
	var sb strings.Builder

	sb.WriteString("## Schema\n")
	for _, t := range ctx.Tables {
		fmt.Fprintf(&sb, "TABLE %s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&sb, " -- %s", t.Description)
		}
		sb.WriteString("\n")
		for _, c := range t.Columns {
			fmt.Fprintf(&sb, "  %s %s", c.Name, c.Type)
			if c.Description != "" {
				fmt.Fprintf(&sb, " -- %s", c.Description)
			}
			sb.WriteString("\n")
		}
	}

	if len(ctx.Relationships) > 0 {
		sb.WriteString("\n## Relationships\n")
		for _, r := range ctx.Relationships {
			fmt.Fprintf(&sb, "%s.%s -> %s.%s\n", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		}
	}

	if len(ctx.DateAliases) > 0 {
		sb.WriteString("\n## Date aliases\n")
		aliases := make([]string, 0, len(ctx.DateAliases))
		for a := range ctx.DateAliases {
			aliases = append(aliases, a)
		}
		sort.Strings(aliases)
		for _, a := range aliases {
			fmt.Fprintf(&sb, "%q means %s\n", a, ctx.DateAliases[a])
		}
	}

	sb.WriteString("\n## Resolved intent\n")
	if len(intent.Tables) > 0 {
		fmt.Fprintf(&sb, "tables: %s\n", strings.Join(intent.Tables, ", "))
	}
	if len(intent.Columns) > 0 {
		cols := make([]string, 0, len(intent.Columns))
		for _, c := range intent.Columns {
			cols = append(cols, c.String())
		}
		fmt.Fprintf(&sb, "columns: %s\n", strings.Join(cols, ", "))
	}
	for _, f := range intent.Filters {
		if f.DateAlias != "" {
			fmt.Fprintf(&sb, "filter: %s refers to the period %q\n", f.Column, f.DateAlias)
			continue
		}
		fmt.Fprintf(&sb, "filter: %s %s %s\n", f.Column, f.Operator, f.Value)
	}
	for _, a := range intent.Aggregations {
		if a.Column.Table == "" {
			fmt.Fprintf(&sb, "aggregation: %s(*)\n", a.Function)
			continue
		}
		fmt.Fprintf(&sb, "aggregation: %s(%s)\n", a.Function, a.Column)
	}
	for _, s := range intent.Shapes {
		fmt.Fprintf(&sb, "shape: %s\n", s)
	}

	if len(patterns) > 0 {
		sb.WriteString("\n## Applicable query patterns\n")
		sb.WriteString("One of these templates may fit; adapt placeholders to the schema above.\n")
		for _, p := range patterns {
			fmt.Fprintf(&sb, "### %s\n", p.Name)
			if p.Hint != "" {
				fmt.Fprintf(&sb, "-- %s\n", p.Hint)
			}
			sb.WriteString(substitutePlaceholders(p.Template, ctx, intent))
			sb.WriteString("\n")
		}
	}

	if diagnostic != "" {
		sb.WriteString("\n## Previous attempt failed validation\n")
		sb.WriteString(diagnostic)
		sb.WriteString("\nFix the problem and regenerate the query.\n")
	}

	sb.WriteString("\n## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	return sb.String()
}

// substitutePlaceholders fills the obvious template slots from the clipped
// context. Slots with no unambiguous value are left for the model.
func substitutePlaceholders(template string, ctx clipper.ClippedContext, intent conversation.Intent) string {
	out := template
	if len(intent.Tables) > 0 {
		out = strings.ReplaceAll(out, "{table}", intent.Tables[0])
	} else if len(ctx.Tables) > 0 {
		out = strings.ReplaceAll(out, "{table}", ctx.Tables[0].Name)
	}
	if len(intent.Columns) > 0 {
		out = strings.ReplaceAll(out, "{column}", intent.Columns[0].Column)
	}
	out = strings.ReplaceAll(out, "{n}", "10")
	return out
}
