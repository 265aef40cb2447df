package validator

import (
	"regexp"
	"strings"
)

// The guard rejects anything that is not a plain read and anything that
// smells like injection, before the query gets near EXPLAIN. Generated SQL
// should never trip these; when it does, the turn fails hard rather than
// regenerating, because a mutating statement is a model gone off the rails,
// not a fixable diagnostic.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*DROP\s+`),
	regexp.MustCompile(`(?i);\s*DELETE\s+`),
	regexp.MustCompile(`(?i);\s*INSERT\s+`),
	regexp.MustCompile(`(?i);\s*UPDATE\s+`),
	regexp.MustCompile(`(?i);\s*ALTER\s+`),
	regexp.MustCompile(`(?i);\s*CREATE\s+`),
	regexp.MustCompile(`(?i);\s*TRUNCATE\s+`),
	regexp.MustCompile(`(?i);\s*EXEC(?:UTE)?\b`),
	regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`),
	regexp.MustCompile(`(?i)\bINTO\s+DUMPFILE\b`),
	regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`),
	regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`),
	regexp.MustCompile(`(?i)\bSLEEP\s*\(`),
	regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
	regexp.MustCompile(`;\s*--`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)\bor\s+'1'\s*=\s*'1'`),
}

// guard returns a non-empty reason when the SQL must not run.
func guard(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "SQL is empty"
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "only SELECT queries are allowed"
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(sql) {
			return "disallowed SQL pattern: " + p.String()
		}
	}
	return ""
}
