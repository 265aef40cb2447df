package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DomainPattern is a keyword-triggered SQL template. Placeholders like
// {table} and {column} are filled from the clipped context before the
// template reaches the prompt. All matching patterns are surfaced to the
// generation step, not just the best one — the model picks among them with
// the question in view.
type DomainPattern struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Template string   `json:"template"`
	Hint     string   `json:"hint,omitempty"`
}

// LoadPatterns reads domain patterns from a JSON file. An empty path means
// the built-in defaults.
func LoadPatterns(path string) ([]DomainPattern, error) {
	if path == "" {
		return defaultPatterns(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	var patterns []DomainPattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}
	return patterns, nil
}

// MatchPatterns returns every pattern whose keywords overlap the question,
// ranked by overlap count, ties by declaration order.
func MatchPatterns(question string, patterns []DomainPattern) []DomainPattern {
	lower := strings.ToLower(question)

	type scored struct {
		p     DomainPattern
		score int
	}
	var hits []scored
	for _, p := range patterns {
		score := 0
		for _, kw := range p.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{p: p, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]DomainPattern, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out
}

func defaultPatterns() []DomainPattern {
	return []DomainPattern{
		{
			Name:     "percentage_breakdown",
			Keywords: []string{"percentage", "percent", "share of", "proportion", "breakdown"},
			Template: "SELECT {group_column}, COUNT(*) * 100.0 / SUM(COUNT(*)) OVER () AS pct\nFROM {table}\nGROUP BY {group_column}\nORDER BY pct DESC",
			Hint:     "percentage of total via a window function over the grouped counts",
		},
		{
			Name:     "relative_to_average",
			Keywords: []string{"above average", "below average", "higher than average", "high", "low"},
			Template: "SELECT *\nFROM {table}\nWHERE {column} > (SELECT AVG({column}) FROM {table})",
			Hint:     "\"high\"/\"low\" means relative to the column average, via a scalar subquery",
		},
		{
			Name:     "versus_comparison",
			Keywords: []string{"versus", "vs", "compared to", "compare", "comparison"},
			Template: "SELECT {group_column}, COUNT(*) AS n, SUM({column}) AS total\nFROM {table}\nGROUP BY {group_column}",
			Hint:     "a versus comparison implies GROUP BY on the compared dimension",
		},
		{
			Name:     "top_n",
			Keywords: []string{"top", "highest", "largest", "best"},
			Template: "SELECT *\nFROM {table}\nORDER BY {column} DESC\nLIMIT {n}",
		},
	}
}
