package generator

import (
	"regexp"
	"strings"
)

// ExtractSQL pulls SQL from model output, trying in order:
//  1. a ```sql fenced block
//  2. any fenced block whose content starts with SELECT or WITH
//  3. a CTE or multi-line SELECT statement in plain text
//  4. a single-line SELECT as a last resort
var (
	reCTE         = regexp.MustCompile(`(?is)(WITH\s+\w+\s+AS\s*\(.+?(?:LIMIT\s+\d+|;\s*$|\z))`)
	reSelectBlock = regexp.MustCompile(`(?is)(SELECT\s+.+?FROM\s+.+?(?:LIMIT\s+\d+|;\s*$|\z))`)
	reSelectLine  = regexp.MustCompile(`(?i)(SELECT\s+\S.+?\bFROM\b\s+\S+)`)
)

func ExtractSQL(text string) string {
	if sql := fromTaggedFence(text); sql != "" {
		return sql
	}
	if sql := fromAnyFence(text); sql != "" {
		return sql
	}
	if m := reCTE.FindString(text); m != "" {
		return strings.TrimSuffix(strings.TrimSpace(m), ";")
	}
	if m := reSelectBlock.FindString(text); m != "" {
		candidate := strings.TrimSuffix(strings.TrimSpace(m), ";")
		if strings.Contains(strings.ToUpper(candidate), " FROM ") {
			return candidate
		}
	}
	if m := reSelectLine.FindString(text); m != "" {
		return strings.TrimSuffix(strings.TrimSpace(m), ";")
	}
	return ""
}

func fromTaggedFence(text string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "```sql")
	if idx == -1 {
		return ""
	}
	body := text[idx+len("```sql"):]
	if len(body) > 0 && body[0] == '\n' {
		body = body[1:]
	}
	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSpace(body[:end]), ";")
}

func fromAnyFence(text string) string {
	parts := strings.Split(text, "```")
	for i := 1; i < len(parts); i += 2 {
		candidate := strings.TrimSpace(parts[i])
		// Drop a language tag line if present ("sql\nSELECT ...").
		if nl := strings.Index(candidate, "\n"); nl != -1 {
			firstLine := strings.ToUpper(strings.TrimSpace(candidate[:nl]))
			if !strings.Contains(firstLine, "SELECT") && !strings.Contains(firstLine, "WITH") {
				candidate = strings.TrimSpace(candidate[nl:])
			}
		}
		up := strings.ToUpper(candidate)
		if strings.HasPrefix(up, "SELECT") || strings.HasPrefix(up, "WITH") {
			return strings.TrimSuffix(candidate, ";")
		}
	}
	return ""
}
