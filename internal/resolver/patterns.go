package resolver

import "regexp"

// Question shapes treated as inherently unambiguous even though they imply
// multi-step SQL. Recognizing a shape suppresses clarification: these
// questions read as ambiguous to the candidate scorer (two plausible
// columns, comparative wording) but have a single sensible SQL rendering.
// The enabled set is configuration, not a constant, because the right
// precision/recall trade-off is domain-specific.
var shapeDetectors = map[string]*regexp.Regexp{
	"percentage_of_total": regexp.MustCompile(`(?i)\b(percentage|percent|proportion|share)\s+of\b|%\s*of\b|\bbreakdown\b`),
	"relative_to_average": regexp.MustCompile(`(?i)\b(high|higher|low|lower)\b.*\b(average|avg|typical|normal)\b|\b(above|below)\s+average\b`),
	"versus_comparison":   regexp.MustCompile(`(?i)\bvs\.?\b|\bversus\b|\bcompared?\s+(to|with|against)\b|\bcomparison\b`),
}

// detectShapes returns the enabled shapes matching the question.
func detectShapes(question string, enabled []string) []string {
	var out []string
	for _, name := range enabled {
		re, ok := shapeDetectors[name]
		if !ok {
			continue
		}
		if re.MatchString(question) {
			out = append(out, name)
		}
	}
	return out
}
