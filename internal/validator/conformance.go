package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/queryline/queryline/internal/schema"
)

// Schema conformance is checked against the FULL schema, not the clipped
// subset handed to generation. A query referencing a real column that the
// clipper omitted is still valid SQL; the conformance check must not
// produce false positives for clipping decisions.

var (
	// FROM inside EXTRACT/SUBSTRING/TRIM style argument lists is an operand
	// separator, not a table reference; it is stripped before the table scan.
	reFuncFrom   = regexp.MustCompile(`(?i)\b(EXTRACT|SUBSTRING|TRIM|POSITION|OVERLAY)\s*\([^()]*?\bFROM\s+`)
	reFromJoin   = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_.]*)(?:\s+(?:AS\s+)?([a-zA-Z_][a-zA-Z0-9_]*))?`)
	reQualified  = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
	reStrings    = regexp.MustCompile(`'(?:[^']|'')*'`)
	reCTEName    = regexp.MustCompile(`(?i)\bWITH\s+([a-zA-Z_][a-zA-Z0-9_]*)\s+AS\b|,\s*([a-zA-Z_][a-zA-Z0-9_]*)\s+AS\s*\(`)
	reAsAlias    = regexp.MustCompile(`(?i)\bAS\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	reIdentifier = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\b`)
)

var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "inner": true,
	"left": true, "right": true, "outer": true, "full": true, "on": true,
	"and": true, "or": true, "not": true, "in": true, "exists": true,
	"between": true, "like": true, "ilike": true, "is": true, "null": true,
	"order": true, "by": true, "group": true, "having": true, "limit": true,
	"offset": true, "asc": true, "desc": true, "distinct": true, "as": true,
	"with": true, "case": true, "when": true, "then": true, "else": true,
	"end": true, "union": true, "all": true, "over": true, "partition": true,
	"cross": true, "natural": true, "using": true, "nulls": true,
	"first": true, "last": true, "true": true, "false": true,
	"current_date": true, "current_timestamp": true, "interval": true,
	"rows": true, "range": true, "unbounded": true, "preceding": true,
	"following": true, "row": true, "lateral": true,
}

// checkConformance verifies that every table and qualified column the SQL
// references exists in the schema. It returns a diagnostic suitable for
// feeding back to regeneration, or "" when the references all resolve.
func checkConformance(sql string, cache *schema.Cache) string {
	cleaned := reStrings.ReplaceAllString(sql, "''")
	cleaned = reFuncFrom.ReplaceAllString(cleaned, "$1(")

	// CTE names are tables for the rest of the statement.
	cteNames := make(map[string]bool)
	for _, m := range reCTEName.FindAllStringSubmatch(cleaned, -1) {
		for _, g := range m[1:] {
			if g != "" {
				cteNames[strings.ToLower(g)] = true
			}
		}
	}

	// Tables after FROM/JOIN, with their aliases.
	aliases := make(map[string]string) // alias -> table
	referenced := make(map[string]bool)
	for _, m := range reFromJoin.FindAllStringSubmatch(cleaned, -1) {
		table := strings.ToLower(m[1])
		// Strip a dataset/schema qualifier; the cache is keyed by bare name.
		if i := strings.LastIndex(table, "."); i >= 0 {
			table = table[i+1:]
		}
		if cteNames[table] {
			continue
		}
		if _, ok := cache.Tables[table]; !ok {
			return fmt.Sprintf("unknown table %q", table)
		}
		referenced[table] = true
		if alias := strings.ToLower(m[2]); alias != "" && !sqlKeywords[alias] {
			aliases[alias] = table
		}
	}

	// Column aliases introduced with AS are legal identifiers downstream
	// (ORDER BY total), not schema references.
	selectAliases := make(map[string]bool)
	for _, m := range reAsAlias.FindAllStringSubmatch(cleaned, -1) {
		selectAliases[strings.ToLower(m[1])] = true
	}

	// Qualified column references: alias.column or table.column.
	for _, m := range reQualified.FindAllStringSubmatch(cleaned, -1) {
		qual, col := strings.ToLower(m[1]), strings.ToLower(m[2])
		table := qual
		if t, ok := aliases[qual]; ok {
			table = t
		}
		if cteNames[table] {
			continue
		}
		entry, ok := cache.Tables[table]
		if !ok {
			// Not a table qualifier (could be a function namespace); the
			// EXPLAIN pass owns anything this heuristic cannot see.
			continue
		}
		if !hasColumn(entry, col) {
			return fmt.Sprintf("table %q has no column %q", table, col)
		}
	}

	// Unqualified identifiers must be a column of some referenced table.
	qualified := make(map[string]bool)
	for _, m := range reQualified.FindAllStringSubmatch(cleaned, -1) {
		qualified[strings.ToLower(m[2])] = true
	}
	for _, m := range reIdentifier.FindAllStringSubmatchIndex(cleaned, -1) {
		name := strings.ToLower(cleaned[m[2]:m[3]])
		if sqlKeywords[name] || cteNames[name] || selectAliases[name] || qualified[name] {
			continue
		}
		if _, isAlias := aliases[name]; isAlias {
			continue
		}
		if referenced[name] {
			continue
		}
		// Function call or qualified part; both are out of scope here.
		rest := cleaned[m[3]:]
		if strings.HasPrefix(strings.TrimLeft(rest, " "), "(") || strings.HasPrefix(rest, ".") {
			continue
		}
		if m[2] > 0 && cleaned[m[2]-1] == '.' {
			continue
		}
		found := false
		for table := range referenced {
			if hasColumn(cache.Tables[table], name) {
				found = true
				break
			}
		}
		if !found && len(referenced) > 0 {
			return fmt.Sprintf("unknown column %q (not in %s)", name, joinedTables(referenced))
		}
	}

	return ""
}

func joinedTables(referenced map[string]bool) string {
	names := make([]string, 0, len(referenced))
	for t := range referenced {
		names = append(names, t)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func hasColumn(t schema.TableEntry, name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
