package schema

import (
	"sort"
	"strings"
)

// Cache is the immutable, searchable schema index. One cache exists per
// schema version; consumers never mutate it and a rebuild produces a whole
// new Cache rather than touching this one.
type Cache struct {
	Version       int
	Tables        map[string]TableEntry
	Relationships []Relationship
	DateAliases   map[string]ColumnRef
	Preferences   map[string]ColumnRef
}

// Scoring weights, highest-signal source first. The relative order is what
// matters: an exact business-term hit always outranks any number of weaker
// hits on a single keyword.
const (
	scoreBusinessTerm = 1.0
	scoreKeyword      = 0.6
	scoreDescription  = 0.3
	scoreName         = 0.2
)

// Build constructs a cache from a raw schema description. The result is
// deterministic for identical input: vocabulary is lower-cased and
// de-duplicated, relationships are de-duplicated by endpoint pair, and all
// slices are sorted.
func Build(raw RawSchema, version int) *Cache {
	c := &Cache{
		Version:     version,
		Tables:      make(map[string]TableEntry, len(raw.Tables)),
		DateAliases: make(map[string]ColumnRef, len(raw.DateAliases)),
		Preferences: make(map[string]ColumnRef, len(raw.Preferences)),
	}

	for _, t := range raw.Tables {
		entry := TableEntry{
			Name:        t.Name,
			Description: t.Description,
			Columns:     make([]ColumnEntry, 0, len(t.Columns)),
		}
		for _, col := range t.Columns {
			entry.Columns = append(entry.Columns, ColumnEntry{
				Name:          col.Name,
				Type:          col.Type,
				Description:   col.Description,
				BusinessTerms: normalizeTerms(col.BusinessTerms),
				Keywords:      normalizeTerms(col.Keywords),
				PriorityTier:  col.PriorityTier,
				Preferred:     col.Preferred,
			})
		}
		sort.Slice(entry.Columns, func(i, j int) bool {
			return entry.Columns[i].Name < entry.Columns[j].Name
		})
		c.Tables[t.Name] = entry
	}

	seen := make(map[Relationship]bool, len(raw.ForeignKeys))
	for _, fk := range raw.ForeignKeys {
		rel := Relationship(fk)
		if seen[rel] {
			continue
		}
		seen[rel] = true
		c.Relationships = append(c.Relationships, rel)
	}
	sort.Slice(c.Relationships, func(i, j int) bool {
		a, b := c.Relationships[i], c.Relationships[j]
		if a.FromTable != b.FromTable {
			return a.FromTable < b.FromTable
		}
		if a.FromColumn != b.FromColumn {
			return a.FromColumn < b.FromColumn
		}
		if a.ToTable != b.ToTable {
			return a.ToTable < b.ToTable
		}
		return a.ToColumn < b.ToColumn
	})

	for _, da := range raw.DateAliases {
		c.DateAliases[strings.ToLower(da.Alias)] = da.Column
	}
	for _, p := range raw.Preferences {
		c.Preferences[strings.ToLower(p.Role)] = p.Column
	}

	return c
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Match is one ranked lookup result. Column is nil when the match is against
// the table itself (name or description).
type Match struct {
	Table  string
	Column *ColumnEntry
	Score  float64
}

// Ref returns the matched element as a column reference; table-level matches
// have an empty Column.
func (m Match) Ref() ColumnRef {
	if m.Column == nil {
		return ColumnRef{Table: m.Table}
	}
	return ColumnRef{Table: m.Table, Column: m.Column.Name}
}

// Lookup scores every table and column against the given keywords and
// returns matches ranked by score. Scoring prefers exact business-term
// matches over relevance keywords over description substrings over name
// matches. Ties break by priority tier (lower tier value wins, zero last)
// then alphabetically, so the ranking is reproducible.
func (c *Cache) Lookup(keywords []string) []Match {
	kws := normalizeTerms(keywords)
	if len(kws) == 0 {
		return nil
	}

	var matches []Match

	tableNames := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)

	for _, name := range tableNames {
		table := c.Tables[name]

		if s := scoreTable(table, kws); s > 0 {
			matches = append(matches, Match{Table: name, Score: s})
		}
		for i := range table.Columns {
			col := table.Columns[i]
			if s := scoreColumn(col, kws); s > 0 {
				matches = append(matches, Match{Table: name, Column: &col, Score: s})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ta, tb := tierOf(a), tierOf(b); ta != tb {
			return ta < tb
		}
		return a.Ref().String() < b.Ref().String()
	})

	return matches
}

// tierOf normalizes the priority tier for tie-breaks: tier 0 (unranked)
// sorts after every explicit tier.
func tierOf(m Match) int {
	if m.Column == nil || m.Column.PriorityTier == 0 {
		return 1 << 30
	}
	return m.Column.PriorityTier
}

func scoreTable(t TableEntry, kws []string) float64 {
	var s float64
	desc := strings.ToLower(t.Description)
	name := strings.ToLower(t.Name)
	for _, kw := range kws {
		switch {
		case name == kw || name == kw+"s" || name+"s" == kw:
			s += scoreName
		case desc != "" && strings.Contains(desc, kw):
			s += scoreDescription
		case strings.Contains(name, kw):
			s += scoreName / 2
		}
	}
	return s
}

func scoreColumn(c ColumnEntry, kws []string) float64 {
	var s float64
	desc := strings.ToLower(c.Description)
	name := strings.ToLower(c.Name)
	for _, kw := range kws {
		switch {
		case contains(c.BusinessTerms, kw):
			s += scoreBusinessTerm
		case contains(c.Keywords, kw):
			s += scoreKeyword
		case desc != "" && strings.Contains(desc, kw):
			s += scoreDescription
		case name == kw || strings.Contains(name, strings.ReplaceAll(kw, " ", "_")):
			s += scoreName
		}
	}
	return s
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// Vocabulary returns every searchable term in the cache, lower-cased. The
// resolver uses it for the domain-relevance check.
func (c *Cache) Vocabulary() map[string]bool {
	vocab := make(map[string]bool)
	for name, table := range c.Tables {
		vocab[strings.ToLower(name)] = true
		for _, col := range table.Columns {
			vocab[strings.ToLower(col.Name)] = true
			for _, t := range col.BusinessTerms {
				vocab[t] = true
			}
			for _, k := range col.Keywords {
				vocab[k] = true
			}
		}
	}
	for alias := range c.DateAliases {
		vocab[alias] = true
	}
	return vocab
}

// Column finds a column entry by reference.
func (c *Cache) Column(ref ColumnRef) (ColumnEntry, bool) {
	table, ok := c.Tables[ref.Table]
	if !ok {
		return ColumnEntry{}, false
	}
	for _, col := range table.Columns {
		if col.Name == ref.Column {
			return col, true
		}
	}
	return ColumnEntry{}, false
}

// Neighbors returns every table reachable from the given table by exactly
// one relationship hop, in either direction.
func (c *Cache) Neighbors(table string) []string {
	seen := make(map[string]bool)
	for _, rel := range c.Relationships {
		if rel.FromTable == table {
			seen[rel.ToTable] = true
		}
		if rel.ToTable == table {
			seen[rel.FromTable] = true
		}
	}
	delete(seen, table)
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
