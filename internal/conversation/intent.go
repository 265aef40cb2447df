// Package conversation holds the only mutable cross-turn state: the
// append-only turn log, the conversation status, and the accumulating
// Intent. Everything else in the pipeline is stateless per turn.
package conversation

import (
	"sort"

	"github.com/queryline/queryline/internal/schema"
)

// Intent is the structured, partially-or-fully resolved representation of
// what the user wants. It starts empty for each question and accumulates
// across clarification rounds via Merge; it is frozen once generation
// succeeds.
type Intent struct {
	Tables       []string           `json:"tables"`
	Columns      []schema.ColumnRef `json:"columns"`
	Filters      []Filter           `json:"filters"`
	Aggregations []Aggregation      `json:"aggregations"`
	Confidence   map[string]float64 `json:"confidence"`
	Ambiguities  []Ambiguity        `json:"ambiguities"`
	Shapes       []string           `json:"shapes,omitempty"` // recognized unambiguous question shapes
	frozen       bool
}

// Filter is a single predicate the user asked for.
type Filter struct {
	Column    schema.ColumnRef `json:"column"`
	Operator  string           `json:"operator"` // >, <, =, >=, <=, like, between
	Value     string           `json:"value"`
	DateAlias string           `json:"date_alias,omitempty"` // set when the column came from a date alias
}

// Aggregation is a requested aggregate over a column.
type Aggregation struct {
	Function string           `json:"function"` // count, sum, avg, min, max
	Column   schema.ColumnRef `json:"column"`
}

// Ambiguity records competing schema elements for one semantic role, with
// the scores that put them inside the ambiguity margin of each other.
type Ambiguity struct {
	Role       string      `json:"role"` // the user phrase that matched, e.g. "risk score"
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one competing choice inside an ambiguity.
type Candidate struct {
	Ref         schema.ColumnRef `json:"ref"`
	Description string           `json:"description"`
	Score       float64          `json:"score"`
}

// Freeze marks the intent as final. Merge panics on a frozen intent, which
// is deliberate: mutating a frozen intent is a pipeline ordering bug, not a
// runtime condition to tolerate.
func (in *Intent) Freeze() { in.frozen = true }

func (in *Intent) Frozen() bool { return in.frozen }

// HasTable reports whether at least one table is resolved, the minimum for
// generation to proceed.
func (in *Intent) HasTable() bool { return len(in.Tables) > 0 }

// Merge folds delta into the intent. The merge is total and union-only:
// fields already resolved are never cleared or overwritten by an empty
// delta field. Ambiguities are the one exception — they are replaced by the
// delta's recomputed set, since an ambiguity disappears exactly when a
// later round resolves it.
func (in *Intent) Merge(delta Intent) {
	if in.frozen {
		panic("conversation: merge into frozen intent")
	}

	for _, t := range delta.Tables {
		if !containsString(in.Tables, t) {
			in.Tables = append(in.Tables, t)
		}
	}
	sort.Strings(in.Tables)

	for _, c := range delta.Columns {
		if !containsRef(in.Columns, c) {
			in.Columns = append(in.Columns, c)
		}
	}
	sort.Slice(in.Columns, func(i, j int) bool {
		return in.Columns[i].String() < in.Columns[j].String()
	})

	for _, f := range delta.Filters {
		if !containsFilter(in.Filters, f) {
			in.Filters = append(in.Filters, f)
		}
	}
	for _, a := range delta.Aggregations {
		if !containsAgg(in.Aggregations, a) {
			in.Aggregations = append(in.Aggregations, a)
		}
	}
	for _, s := range delta.Shapes {
		if !containsString(in.Shapes, s) {
			in.Shapes = append(in.Shapes, s)
		}
	}

	if len(delta.Confidence) > 0 && in.Confidence == nil {
		in.Confidence = make(map[string]float64, len(delta.Confidence))
	}
	for field, conf := range delta.Confidence {
		if conf > in.Confidence[field] {
			in.Confidence[field] = conf
		}
	}

	in.Ambiguities = delta.Ambiguities
}

// Clone returns a deep copy, used to roll a turn back without touching the
// intent gathered by earlier turns.
func (in *Intent) Clone() Intent {
	out := Intent{
		frozen:       in.frozen,
		Tables:       append([]string(nil), in.Tables...),
		Columns:      append([]schema.ColumnRef(nil), in.Columns...),
		Filters:      append([]Filter(nil), in.Filters...),
		Aggregations: append([]Aggregation(nil), in.Aggregations...),
		Shapes:       append([]string(nil), in.Shapes...),
		Ambiguities:  append([]Ambiguity(nil), in.Ambiguities...),
	}
	if in.Confidence != nil {
		out.Confidence = make(map[string]float64, len(in.Confidence))
		for k, v := range in.Confidence {
			out.Confidence[k] = v
		}
	}
	return out
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func containsRef(refs []schema.ColumnRef, v schema.ColumnRef) bool {
	for _, r := range refs {
		if r == v {
			return true
		}
	}
	return false
}

func containsFilter(fs []Filter, v Filter) bool {
	for _, f := range fs {
		if f == v {
			return true
		}
	}
	return false
}

func containsAgg(as []Aggregation, v Aggregation) bool {
	for _, a := range as {
		if a == v {
			return true
		}
	}
	return false
}
