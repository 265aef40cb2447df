package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

const columnsQuery = `
SELECT c.table_name,
       c.column_name,
       c.data_type,
       COALESCE(pgd.description, '')
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
LEFT JOIN pg_catalog.pg_statio_all_tables st
  ON st.schemaname = c.table_schema AND st.relname = c.table_name
LEFT JOIN pg_catalog.pg_description pgd
  ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

const foreignKeysQuery = `
SELECT tc.table_name,
       kcu.column_name,
       ccu.table_name AS foreign_table,
       ccu.column_name AS foreign_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
ORDER BY tc.table_name, kcu.column_name`

// Introspector reads table, column and foreign-key metadata from a live
// Postgres database and turns it into a RawSchema. Business metadata
// (synonyms, tiers, date aliases) comes from an optional metadata file and
// is merged on top by MergeMetadata.
type Introspector struct {
	db         *sql.DB
	schemaName string
}

func NewIntrospector(db *sql.DB, schemaName string) *Introspector {
	if schemaName == "" {
		schemaName = "public"
	}
	return &Introspector{db: db, schemaName: schemaName}
}

// Introspect builds a RawSchema from information_schema.
func (in *Introspector) Introspect(ctx context.Context) (RawSchema, error) {
	var raw RawSchema

	rows, err := in.db.QueryContext(ctx, columnsQuery, in.schemaName)
	if err != nil {
		return raw, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]*RawTable)
	var order []string
	for rows.Next() {
		var table, column, dataType, description string
		if err := rows.Scan(&table, &column, &dataType, &description); err != nil {
			return raw, fmt.Errorf("scan column row: %w", err)
		}
		t, ok := tables[table]
		if !ok {
			t = &RawTable{Name: table}
			tables[table] = t
			order = append(order, table)
		}
		t.Columns = append(t.Columns, RawColumn{
			Name:        column,
			Type:        dataType,
			Description: description,
		})
	}
	if err := rows.Err(); err != nil {
		return raw, fmt.Errorf("iterate columns: %w", err)
	}

	for _, name := range order {
		raw.Tables = append(raw.Tables, *tables[name])
	}

	fkRows, err := in.db.QueryContext(ctx, foreignKeysQuery, in.schemaName)
	if err != nil {
		return raw, fmt.Errorf("query foreign keys: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var fk ForeignKey
		if err := fkRows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return raw, fmt.Errorf("scan foreign key row: %w", err)
		}
		raw.ForeignKeys = append(raw.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return raw, fmt.Errorf("iterate foreign keys: %w", err)
	}

	log.Debug().
		Int("tables", len(raw.Tables)).
		Int("foreign_keys", len(raw.ForeignKeys)).
		Str("schema", in.schemaName).
		Msg("introspected database schema")

	return raw, nil
}
