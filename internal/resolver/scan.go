package resolver

import (
	"regexp"
	"sort"
	"strings"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/schema"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "to": true, "with": true, "by": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "do": true,
	"does": true, "have": true, "has": true, "which": true, "what": true,
	"who": true, "show": true, "me": true, "list": true, "get": true,
	"give": true, "find": true, "all": true, "any": true, "please": true,
	"above": true, "below": true, "over": true, "under": true, "than": true,
	"that": true, "this": true, "their": true, "there": true, "from": true,
}

var tokenRe = regexp.MustCompile(`[a-z0-9_]+`)

func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// phrases generates candidate lookup phrases from the tokens: trigrams and
// bigrams first so multi-word business terms ("risk score") win over their
// parts, then non-stopword unigrams.
func phrases(tokens []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for n := 3; n >= 2; n-- {
		for i := 0; i+n <= len(tokens); i++ {
			gram := strings.Join(tokens[i:i+n], " ")
			add(gram)
		}
	}
	for _, t := range tokens {
		if !stopwords[t] && len(t) > 1 {
			add(t)
		}
	}
	return out
}

// Comparator phrase -> SQL operator. Order matters: two-word forms are
// matched before their single-word prefixes.
var filterPatterns = []struct {
	re *regexp.Regexp
	op string
}{
	{regexp.MustCompile(`(?i)\bat least\s+(\d+(?:\.\d+)?)`), ">="},
	{regexp.MustCompile(`(?i)\bat most\s+(\d+(?:\.\d+)?)`), "<="},
	{regexp.MustCompile(`(?i)\b(?:above|over|greater than|more than|exceeding|higher than)\s+(\d+(?:\.\d+)?)`), ">"},
	{regexp.MustCompile(`(?i)\b(?:below|under|less than|fewer than|lower than)\s+(\d+(?:\.\d+)?)`), "<"},
	{regexp.MustCompile(`(?i)\b(?:equal to|equals|exactly)\s+(\d+(?:\.\d+)?)`), "="},
}

// detectFilters extracts numeric comparison predicates from the question.
// The column they bind to is decided later, once roles are resolved.
func detectFilters(question string) []conversation.Filter {
	var out []conversation.Filter
	for _, fp := range filterPatterns {
		for _, m := range fp.re.FindAllStringSubmatch(question, -1) {
			out = append(out, conversation.Filter{Operator: fp.op, Value: m[1]})
		}
	}
	return out
}

var aggPatterns = []struct {
	re *regexp.Regexp
	fn string
}{
	{regexp.MustCompile(`(?i)\bhow many\b|\bcount\b|\bnumber of\b`), "count"},
	{regexp.MustCompile(`(?i)\btotal\b|\bsum\b`), "sum"},
	{regexp.MustCompile(`(?i)\baverage\b|\bmean\b|\bavg\b`), "avg"},
	{regexp.MustCompile(`(?i)\bhighest\b|\bmaximum\b|\bmax\b|\blargest\b`), "max"},
	{regexp.MustCompile(`(?i)\blowest\b|\bminimum\b|\bmin\b|\bsmallest\b`), "min"},
}

func detectAggregations(question string) []conversation.Aggregation {
	var out []conversation.Aggregation
	for _, ap := range aggPatterns {
		if ap.re.MatchString(question) {
			out = append(out, conversation.Aggregation{Function: ap.fn})
		}
	}
	return out
}

// detectDateAliases returns filters for every date alias mentioned in the
// question, bound to the alias's concrete column.
func detectDateAliases(question string, cache *schema.Cache) []conversation.Filter {
	lower := strings.ToLower(question)

	// Sorted keys keep filter order, and with it the generation prompt,
	// stable across runs.
	aliases := make([]string, 0, len(cache.DateAliases))
	for alias := range cache.DateAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	var out []conversation.Filter
	for _, alias := range aliases {
		if strings.Contains(lower, alias) {
			out = append(out, conversation.Filter{
				Column:    cache.DateAliases[alias],
				Operator:  "=",
				DateAlias: alias,
			})
		}
	}
	return out
}
