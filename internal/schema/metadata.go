package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata is the business enrichment layer supplied by the schema editor:
// vocabulary and preferences that cannot be introspected from the database.
type Metadata struct {
	Columns     []ColumnMetadata `json:"columns"`
	ForeignKeys []ForeignKey     `json:"foreign_keys"` // for backends without introspectable keys
	DateAliases []DateAlias      `json:"date_aliases"`
	Preferences []Preference     `json:"preferences"`
}

type ColumnMetadata struct {
	Table         string   `json:"table"`
	Column        string   `json:"column"`
	Description   string   `json:"description,omitempty"`
	BusinessTerms []string `json:"business_terms,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	PriorityTier  int      `json:"priority_tier,omitempty"`
	Preferred     bool     `json:"preferred,omitempty"`
}

// LoadMetadata reads a metadata file. A missing path returns empty metadata.
func LoadMetadata(path string) (Metadata, error) {
	var md Metadata
	if path == "" {
		return md, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return md, fmt.Errorf("read schema metadata: %w", err)
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("parse schema metadata: %w", err)
	}
	return md, nil
}

// MergeMetadata applies business metadata onto an introspected schema.
// Entries for unknown tables or columns are skipped. A metadata description
// overrides an introspected one only when non-empty.
func MergeMetadata(raw RawSchema, md Metadata) RawSchema {
	byRef := make(map[ColumnRef]ColumnMetadata, len(md.Columns))
	for _, cm := range md.Columns {
		byRef[ColumnRef{Table: cm.Table, Column: cm.Column}] = cm
	}

	for ti := range raw.Tables {
		table := &raw.Tables[ti]
		for ci := range table.Columns {
			col := &table.Columns[ci]
			cm, ok := byRef[ColumnRef{Table: table.Name, Column: col.Name}]
			if !ok {
				continue
			}
			if cm.Description != "" {
				col.Description = cm.Description
			}
			col.BusinessTerms = append(col.BusinessTerms, cm.BusinessTerms...)
			col.Keywords = append(col.Keywords, cm.Keywords...)
			if cm.PriorityTier != 0 {
				col.PriorityTier = cm.PriorityTier
			}
			if cm.Preferred {
				col.Preferred = true
			}
		}
	}

	raw.ForeignKeys = append(raw.ForeignKeys, md.ForeignKeys...)
	raw.DateAliases = append(raw.DateAliases, md.DateAliases...)
	raw.Preferences = append(raw.Preferences, md.Preferences...)
	return raw
}
