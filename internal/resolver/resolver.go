// Package resolver maps a question plus conversation history against the
// schema knowledge cache into a structured intent, with explicit ambiguity
// detection. When two schema elements satisfy a phrase equally well and no
// tie-break applies, the resolver asks the user instead of guessing.
package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/schema"
)

// State is the resolution stage outcome.
type State string

const (
	StateResolved           State = "resolved"
	StateNeedsClarification State = "needs_clarification"
)

// Config carries the resolver policy knobs.
type Config struct {
	// AmbiguityMargin is the fraction of the top score within which a
	// second candidate makes a phrase ambiguous.
	AmbiguityMargin float64
	// HistoryWindow is how many recent turns are scanned along with the
	// question.
	HistoryWindow int
	// Shapes are the enabled inherently-unambiguous question shapes.
	Shapes []string
}

// Outcome is the typed result of one resolution pass. Delta carries the
// newly resolved fields; the caller merges it into the gathered intent.
type Outcome struct {
	State         State
	Delta         conversation.Intent
	Clarification *conversation.Clarification
}

// Relevance is the domain check result.
type Relevance struct {
	Relevant  bool
	Hits      int
	Reasoning string
}

type Resolver struct {
	cfg Config
}

func New(cfg Config) *Resolver {
	if cfg.AmbiguityMargin <= 0 {
		cfg.AmbiguityMargin = 0.20
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	return &Resolver{cfg: cfg}
}

// CheckRelevance decides whether the question is inside the configured
// schema's vocabulary at all. Questions with zero overlap are rejected
// before the pipeline spends an LLM call on them.
func (r *Resolver) CheckRelevance(question string, cache *schema.Cache) Relevance {
	vocab := cache.Vocabulary()
	lower := strings.ToLower(question)
	tokens := tokenize(question)

	hits := 0
	for term := range vocab {
		if strings.Contains(term, " ") {
			if strings.Contains(lower, term) {
				hits++
			}
			continue
		}
		for _, t := range tokens {
			if t == term || strings.Contains(t, term) || strings.Contains(term, t) && len(t) > 3 {
				hits++
				break
			}
		}
	}

	if hits == 0 {
		return Relevance{Relevant: false, Reasoning: "no overlap with schema vocabulary"}
	}
	return Relevance{
		Relevant:  true,
		Hits:      hits,
		Reasoning: fmt.Sprintf("%d schema vocabulary hits", hits),
	}
}

// Resolve scans the question and recent history against the cache and
// produces an intent delta, asking for clarification when a phrase stays
// ambiguous after every tie-break.
func (r *Resolver) Resolve(question string, history []conversation.Turn, cache *schema.Cache) Outcome {
	shapes := detectShapes(question, r.cfg.Shapes)

	scanText := question
	n := len(history)
	if n > r.cfg.HistoryWindow {
		history = history[n-r.cfg.HistoryWindow:]
	}
	for _, turn := range history {
		scanText += " " + turn.Text
	}

	delta := conversation.Intent{
		Confidence: make(map[string]float64),
		Shapes:     shapes,
	}

	covered := make(map[string]bool)
	var ambiguities []conversation.Ambiguity

	for _, phrase := range phrases(tokenize(scanText)) {
		if phraseCovered(phrase, covered) {
			continue
		}
		matches := cache.Lookup([]string{phrase})
		if len(matches) == 0 {
			continue
		}
		top := matches[0]

		if top.Column == nil {
			// Table-level hit.
			if !intentHasTable(&delta, top.Table) {
				delta.Tables = append(delta.Tables, top.Table)
				bump(delta.Confidence, "tables", top.Score)
			}
			coverPhrase(phrase, covered)
			continue
		}

		cands := columnCandidates(matches, r.cfg.AmbiguityMargin)
		coverPhrase(phrase, covered)

		if len(cands) == 1 {
			addColumn(&delta, cands[0].Ref, cands[0].Score)
			continue
		}

		if ref, ok := breakTie(phrase, cands, cache); ok {
			addColumn(&delta, ref, cands[0].Score)
			continue
		}

		if len(shapes) > 0 {
			// Recognized shape: proceed with the best candidate rather
			// than looping the user through a needless clarification.
			addColumn(&delta, cands[0].Ref, cands[0].Score)
			continue
		}

		ambiguities = append(ambiguities, conversation.Ambiguity{
			Role:       phrase,
			Candidates: cands,
		})
	}

	delta.Ambiguities = ambiguities

	r.bindFilters(question, &delta, cache)
	r.bindAggregations(question, &delta)

	if amb := firstAmbiguity(delta.Ambiguities); amb != nil {
		return Outcome{
			State:         StateNeedsClarification,
			Delta:         delta,
			Clarification: clarificationFor(*amb),
		}
	}

	if !delta.HasTable() {
		return Outcome{
			State:         StateNeedsClarification,
			Delta:         delta,
			Clarification: tableClarification(cache),
		}
	}

	return Outcome{State: StateResolved, Delta: delta}
}

// ResolveClarification interprets a clarification answer against the
// outstanding candidates and re-checks only the still-unresolved roles.
func (r *Resolver) ResolveClarification(
	answer string,
	pending conversation.Clarification,
	current conversation.Intent,
	cache *schema.Cache,
) Outcome {
	chosen, ok := matchAnswer(answer, pending.Candidates, cache)
	if !ok {
		// Try a fresh scan of the answer itself; "use the payments table"
		// can resolve a table clarification without naming a candidate.
		sub := r.Resolve(answer, nil, cache)
		if sub.State == StateResolved && sub.Delta.HasTable() {
			sub.Delta.Ambiguities = remainingAmbiguities(current.Ambiguities, pending.Role)
			return r.continueOrResolve(sub.Delta)
		}
		// Merge replaces ambiguities wholesale, so the repeat must carry
		// the current set or the other pending roles would be wiped.
		return Outcome{
			State:         StateNeedsClarification,
			Delta:         conversation.Intent{Ambiguities: current.Ambiguities},
			Clarification: &pending,
		}
	}

	delta := conversation.Intent{
		Confidence: make(map[string]float64),
	}
	if chosen.Ref.Column == "" {
		// Table clarification: the candidate is a bare table.
		delta.Tables = append(delta.Tables, chosen.Ref.Table)
		bump(delta.Confidence, "tables", 1.0)
	} else {
		addColumn(&delta, chosen.Ref, 1.0)
	}
	delta.Ambiguities = remainingAmbiguities(current.Ambiguities, pending.Role)

	// A clarified column also resolves any unbound filter from the
	// original question.
	for i := range current.Filters {
		if current.Filters[i].Column == (schema.ColumnRef{}) {
			f := current.Filters[i]
			f.Column = chosen.Ref
			delta.Filters = append(delta.Filters, f)
		}
	}

	return r.continueOrResolve(delta)
}

func (r *Resolver) continueOrResolve(delta conversation.Intent) Outcome {
	if amb := firstAmbiguity(delta.Ambiguities); amb != nil {
		return Outcome{
			State:         StateNeedsClarification,
			Delta:         delta,
			Clarification: clarificationFor(*amb),
		}
	}
	return Outcome{State: StateResolved, Delta: delta}
}

// bindFilters attaches detected comparison predicates and date aliases to
// the delta. Comparators bind to the primary resolved column; when no
// column is resolved yet they stay unbound and are completed by the
// clarification round.
func (r *Resolver) bindFilters(question string, delta *conversation.Intent, cache *schema.Cache) {
	primary, hasPrimary := primaryColumn(delta)

	for _, f := range detectFilters(question) {
		if hasPrimary {
			f.Column = primary
		}
		delta.Filters = append(delta.Filters, f)
	}
	if len(delta.Filters) > 0 {
		bump(delta.Confidence, "filters", 1.0)
	}

	delta.Filters = append(delta.Filters, detectDateAliases(question, cache)...)
}

func (r *Resolver) bindAggregations(question string, delta *conversation.Intent) {
	primary, hasPrimary := primaryColumn(delta)
	for _, a := range detectAggregations(question) {
		if a.Function != "count" && hasPrimary {
			a.Column = primary
		}
		delta.Aggregations = append(delta.Aggregations, a)
	}
	if len(delta.Aggregations) > 0 {
		bump(delta.Confidence, "aggregations", 1.0)
	}
}

// columnCandidates collects the column matches scoring within margin of the
// top column match.
func columnCandidates(matches []schema.Match, margin float64) []conversation.Candidate {
	var top float64
	for _, m := range matches {
		if m.Column != nil {
			top = m.Score
			break
		}
	}
	if top == 0 {
		return nil
	}
	var cands []conversation.Candidate
	for _, m := range matches {
		if m.Column == nil {
			continue
		}
		if top-m.Score <= margin*top {
			cands = append(cands, conversation.Candidate{
				Ref:         m.Ref(),
				Description: m.Column.Description,
				Score:       m.Score,
			})
		}
	}
	return cands
}

// breakTie applies the fixed tie-break order: explicit user preference for
// the role, exact business-term match, preferred flag, priority tier. A
// tie that survives all four is genuinely ambiguous.
func breakTie(role string, cands []conversation.Candidate, cache *schema.Cache) (schema.ColumnRef, bool) {
	if pref, ok := cache.Preferences[role]; ok {
		for _, c := range cands {
			if c.Ref == pref {
				return c.Ref, true
			}
		}
	}

	var termMatches []schema.ColumnRef
	for _, c := range cands {
		if entry, ok := cache.Column(c.Ref); ok && containsTerm(entry.BusinessTerms, role) {
			termMatches = append(termMatches, c.Ref)
		}
	}
	if len(termMatches) == 1 {
		return termMatches[0], true
	}

	var preferred []schema.ColumnRef
	for _, c := range cands {
		if entry, ok := cache.Column(c.Ref); ok && entry.Preferred {
			preferred = append(preferred, c.Ref)
		}
	}
	if len(preferred) == 1 {
		return preferred[0], true
	}

	bestTier := 1 << 30
	var tierMatches []schema.ColumnRef
	for _, c := range cands {
		entry, ok := cache.Column(c.Ref)
		if !ok || entry.PriorityTier == 0 {
			continue
		}
		switch {
		case entry.PriorityTier < bestTier:
			bestTier = entry.PriorityTier
			tierMatches = []schema.ColumnRef{c.Ref}
		case entry.PriorityTier == bestTier:
			tierMatches = append(tierMatches, c.Ref)
		}
	}
	if len(tierMatches) == 1 {
		return tierMatches[0], true
	}

	return schema.ColumnRef{}, false
}

// matchAnswer picks the candidate the clarification answer refers to, by
// ordinal ("1", "the second one") or by name/description/term overlap.
func matchAnswer(answer string, cands []conversation.Candidate, cache *schema.Cache) (conversation.Candidate, bool) {
	lower := strings.ToLower(answer)
	tokens := tokenize(answer)

	ordinals := map[string]int{"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5}
	for _, t := range tokens {
		if n, err := strconv.Atoi(t); err == nil && n >= 1 && n <= len(cands) {
			return cands[n-1], true
		}
		if n, ok := ordinals[t]; ok && n <= len(cands) {
			return cands[n-1], true
		}
	}

	// Tokens shorter than three characters never count toward overlap, and
	// a score tied across candidates is not a pick: an answer that does not
	// single out one candidate must re-ask, not guess.
	best := -1
	bestScore := 0
	tied := false
	for i, c := range cands {
		score := 0
		spoken := strings.ReplaceAll(c.Ref.Column, "_", " ")
		if strings.Contains(lower, strings.ToLower(spoken)) || strings.Contains(lower, strings.ToLower(c.Ref.Column)) {
			score += 4
		}
		if entry, ok := cache.Column(c.Ref); ok {
			for _, term := range entry.BusinessTerms {
				if strings.Contains(lower, term) {
					score += 3
				}
			}
		}
		for _, t := range tokens {
			if stopwords[t] || len(t) < 3 {
				continue
			}
			if strings.Contains(strings.ToLower(c.Ref.Column), t) ||
				strings.Contains(strings.ToLower(c.Description), t) {
				score++
			}
		}
		switch {
		case score > bestScore:
			bestScore = score
			best = i
			tied = false
		case score > 0 && score == bestScore:
			tied = true
		}
	}
	if best >= 0 && !tied {
		return cands[best], true
	}
	return conversation.Candidate{}, false
}

func clarificationFor(amb conversation.Ambiguity) *conversation.Clarification {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your question mentions %q, which could refer to more than one thing:\n", amb.Role)
	for i, c := range amb.Candidates {
		fmt.Fprintf(&sb, "  %d. %s", i+1, c.Ref)
		if c.Description != "" {
			fmt.Fprintf(&sb, " — %s", c.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Which one do you mean?")
	return &conversation.Clarification{
		Question:   sb.String(),
		Role:       amb.Role,
		Candidates: amb.Candidates,
	}
}

const maxTableSuggestions = 5

func tableClarification(cache *schema.Cache) *conversation.Clarification {
	var names []string
	for name := range cache.Tables {
		names = append(names, name)
	}
	// Deterministic order for tests and for the user.
	sort.Strings(names)
	if len(names) > maxTableSuggestions {
		names = names[:maxTableSuggestions]
	}

	var cands []conversation.Candidate
	var sb strings.Builder
	sb.WriteString("I couldn't tell which table your question is about. Candidates:\n")
	for i, name := range names {
		t := cache.Tables[name]
		fmt.Fprintf(&sb, "  %d. %s", i+1, name)
		if t.Description != "" {
			fmt.Fprintf(&sb, " — %s", t.Description)
		}
		sb.WriteString("\n")
		cands = append(cands, conversation.Candidate{
			Ref:         schema.ColumnRef{Table: name},
			Description: t.Description,
		})
	}
	sb.WriteString("Which table should I use?")
	return &conversation.Clarification{
		Question:   sb.String(),
		Role:       "table",
		Candidates: cands,
	}
}

func remainingAmbiguities(ambs []conversation.Ambiguity, resolvedRole string) []conversation.Ambiguity {
	var out []conversation.Ambiguity
	for _, a := range ambs {
		if a.Role != resolvedRole {
			out = append(out, a)
		}
	}
	return out
}

func firstAmbiguity(ambs []conversation.Ambiguity) *conversation.Ambiguity {
	if len(ambs) == 0 {
		return nil
	}
	return &ambs[0]
}

func primaryColumn(in *conversation.Intent) (schema.ColumnRef, bool) {
	if len(in.Columns) == 0 {
		return schema.ColumnRef{}, false
	}
	return in.Columns[0], true
}

func addColumn(in *conversation.Intent, ref schema.ColumnRef, score float64) {
	for _, c := range in.Columns {
		if c == ref {
			return
		}
	}
	in.Columns = append(in.Columns, ref)
	if ref.Table != "" && !intentHasTable(in, ref.Table) {
		in.Tables = append(in.Tables, ref.Table)
	}
	bump(in.Confidence, "columns", score)
	bump(in.Confidence, "tables", score)
}

func intentHasTable(in *conversation.Intent, table string) bool {
	for _, t := range in.Tables {
		if t == table {
			return true
		}
	}
	return false
}

func bump(conf map[string]float64, field string, score float64) {
	v := score
	if v > 1 {
		v = 1
	}
	if v > conf[field] {
		conf[field] = v
	}
}

func containsTerm(terms []string, v string) bool {
	for _, t := range terms {
		if t == v {
			return true
		}
	}
	return false
}

func phraseCovered(phrase string, covered map[string]bool) bool {
	for _, w := range strings.Fields(phrase) {
		if !covered[w] {
			return false
		}
	}
	return true
}

func coverPhrase(phrase string, covered map[string]bool) {
	for _, w := range strings.Fields(phrase) {
		covered[w] = true
	}
}
