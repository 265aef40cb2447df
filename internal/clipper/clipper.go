// Package clipper selects the minimal schema subset handed to SQL
// generation, keeping the prompt bounded no matter how large the full
// schema grows.
package clipper

import (
	"sort"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/schema"
)

// ClippedContext is the schema subset a generation prompt is rendered from:
// every table and column the intent names, every table one relationship hop
// away (joins the intent implies but does not name), the relationships
// among the included tables, and the date aliases the filters reference.
type ClippedContext struct {
	Version       int
	Tables        []schema.TableEntry
	Relationships []schema.Relationship
	DateAliases   map[string]schema.ColumnRef
}

// Clip is a pure function of (intent, cache version); it has no side
// effects and returns the same context for the same inputs.
func Clip(intent conversation.Intent, cache *schema.Cache) ClippedContext {
	include := make(map[string]bool)

	for _, t := range intent.Tables {
		include[t] = true
	}
	for _, c := range intent.Columns {
		if c.Table != "" {
			include[c.Table] = true
		}
	}
	for _, f := range intent.Filters {
		if f.Column.Table != "" {
			include[f.Column.Table] = true
		}
	}
	for _, a := range intent.Aggregations {
		if a.Column.Table != "" {
			include[a.Column.Table] = true
		}
	}

	// One relationship hop from the named tables, both directions.
	named := make([]string, 0, len(include))
	for t := range include {
		named = append(named, t)
	}
	for _, t := range named {
		for _, n := range cache.Neighbors(t) {
			include[n] = true
		}
	}

	ctx := ClippedContext{
		Version:     cache.Version,
		DateAliases: make(map[string]schema.ColumnRef),
	}

	tableNames := make([]string, 0, len(include))
	for t := range include {
		if _, ok := cache.Tables[t]; ok {
			tableNames = append(tableNames, t)
		}
	}
	sort.Strings(tableNames)
	for _, t := range tableNames {
		ctx.Tables = append(ctx.Tables, cache.Tables[t])
	}

	for _, rel := range cache.Relationships {
		if include[rel.FromTable] && include[rel.ToTable] {
			ctx.Relationships = append(ctx.Relationships, rel)
		}
	}

	for _, f := range intent.Filters {
		if f.DateAlias == "" {
			continue
		}
		if ref, ok := cache.DateAliases[f.DateAlias]; ok {
			ctx.DateAliases[f.DateAlias] = ref
		}
	}

	return ctx
}

// Has reports whether the context includes the given table.
func (c ClippedContext) Has(table string) bool {
	for _, t := range c.Tables {
		if t.Name == table {
			return true
		}
	}
	return false
}
