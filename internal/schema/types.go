// Package schema builds and serves the knowledge cache: a compact, searchable
// index of the configured database schema (tables, columns with business
// vocabulary, foreign-key relationships, date aliases) used by the resolver
// and the context clipper.
package schema

// RawSchema is the full schema description the cache is built from. It is
// produced either by live introspection or supplied by the schema editor,
// optionally enriched with business metadata.
type RawSchema struct {
	Tables      []RawTable   `json:"tables"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	DateAliases []DateAlias  `json:"date_aliases"`
	Preferences []Preference `json:"preferences"`
}

// Preference pins a semantic role ("risk score") to one column, breaking
// ties before any ambiguity is surfaced to the user.
type Preference struct {
	Role   string    `json:"role"`
	Column ColumnRef `json:"column"`
}

type RawTable struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Columns     []RawColumn `json:"columns"`
}

type RawColumn struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Description   string   `json:"description,omitempty"`
	BusinessTerms []string `json:"business_terms,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	PriorityTier  int      `json:"priority_tier,omitempty"` // 1 is highest; 0 means unranked
	Preferred     bool     `json:"preferred,omitempty"`
}

// ForeignKey describes a (fromTable.fromColumn) -> (toTable.toColumn) edge.
type ForeignKey struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// DateAlias maps a spoken alias ("order date") to a concrete column.
type DateAlias struct {
	Alias  string    `json:"alias"`
	Column ColumnRef `json:"column"`
}

// ColumnRef identifies a column by table and name.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

func (r ColumnRef) String() string { return r.Table + "." + r.Column }

// TableEntry is a table in the built cache.
type TableEntry struct {
	Name        string
	Description string
	Columns     []ColumnEntry
}

// ColumnEntry is a column in the built cache. BusinessTerms and Keywords are
// lower-cased and de-duplicated at build time.
type ColumnEntry struct {
	Name          string
	Type          string
	Description   string
	BusinessTerms []string
	Keywords      []string
	PriorityTier  int
	Preferred     bool
}

// Relationship is a deduplicated foreign-key edge in the built cache.
type Relationship struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}
