package resolver

import (
	"strings"
	"testing"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/schema"
)

// singleScoreCache has exactly one column matching "risk score".
func singleScoreCache() *schema.Cache {
	return schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{
				Name:        "customers",
				Description: "Customer master data",
				Columns: []schema.RawColumn{
					{Name: "id", Type: "integer"},
					{Name: "risk_score", Type: "numeric", Description: "Overall customer risk", BusinessTerms: []string{"risk score"}},
					{Name: "region", Type: "text", Keywords: []string{"region"}},
				},
			},
		},
	}, 1)
}

// twoScoreCache has two columns tied on "risk score" with no tie-break.
func twoScoreCache() *schema.Cache {
	return schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{
				Name: "customers",
				Columns: []schema.RawColumn{
					{Name: "risk_score", Type: "numeric", Description: "Behavioral risk", BusinessTerms: []string{"risk score"}},
				},
			},
			{
				Name: "applications",
				Columns: []schema.RawColumn{
					{Name: "risk_rating", Type: "numeric", Description: "Application credit risk", BusinessTerms: []string{"risk score"}},
				},
			},
		},
	}, 1)
}

func TestResolveSingleCandidate(t *testing.T) {
	r := New(Config{})
	out := r.Resolve("customers with risk score above 700", nil, singleScoreCache())

	if out.State != StateResolved {
		t.Fatalf("state = %v, want resolved", out.State)
	}
	wantCol := schema.ColumnRef{Table: "customers", Column: "risk_score"}
	if len(out.Delta.Columns) != 1 || out.Delta.Columns[0] != wantCol {
		t.Errorf("columns = %v, want [%v]", out.Delta.Columns, wantCol)
	}
	if !out.Delta.HasTable() {
		t.Error("table should be resolved alongside the column")
	}
	if len(out.Delta.Filters) != 1 {
		t.Fatalf("filters = %v, want one comparison", out.Delta.Filters)
	}
	f := out.Delta.Filters[0]
	if f.Operator != ">" || f.Value != "700" || f.Column != wantCol {
		t.Errorf("filter = %+v", f)
	}
}

func TestResolveTiedCandidatesAsksForClarification(t *testing.T) {
	r := New(Config{})
	out := r.Resolve("what is the risk score for customers", nil, twoScoreCache())

	if out.State != StateNeedsClarification {
		t.Fatalf("state = %v, want needs_clarification", out.State)
	}
	if out.Clarification == nil {
		t.Fatal("clarification missing")
	}
	if len(out.Clarification.Candidates) != 2 {
		t.Fatalf("candidates = %v, want both tied columns", out.Clarification.Candidates)
	}
	// The question to the user names both candidates explicitly.
	for _, ref := range []string{"customers.risk_score", "applications.risk_rating"} {
		if !strings.Contains(out.Clarification.Question, ref) {
			t.Errorf("clarification question does not mention %s:\n%s", ref, out.Clarification.Question)
		}
	}
}

func TestTieBreakByPreference(t *testing.T) {
	cache := schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{Name: "customers", Columns: []schema.RawColumn{
				{Name: "risk_score", BusinessTerms: []string{"risk score"}},
			}},
			{Name: "applications", Columns: []schema.RawColumn{
				{Name: "risk_rating", BusinessTerms: []string{"risk score"}},
			}},
		},
		Preferences: []schema.Preference{
			{Role: "risk score", Column: schema.ColumnRef{Table: "customers", Column: "risk_score"}},
		},
	}, 1)

	r := New(Config{})
	out := r.Resolve("what is the risk score for customers", nil, cache)
	if out.State != StateResolved {
		t.Fatalf("preference should break the tie, got %v", out.State)
	}
	want := schema.ColumnRef{Table: "customers", Column: "risk_score"}
	if len(out.Delta.Columns) != 1 || out.Delta.Columns[0] != want {
		t.Errorf("columns = %v, want [%v]", out.Delta.Columns, want)
	}
}

func TestTieBreakByPreferredFlag(t *testing.T) {
	cache := schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{Name: "customers", Columns: []schema.RawColumn{
				{Name: "risk_score", BusinessTerms: []string{"risk score"}, Preferred: true},
			}},
			{Name: "applications", Columns: []schema.RawColumn{
				{Name: "risk_rating", BusinessTerms: []string{"risk score"}},
			}},
		},
	}, 1)

	r := New(Config{})
	out := r.Resolve("show me the risk score", nil, cache)
	if out.State != StateResolved {
		t.Fatalf("preferred flag should break the tie, got %v", out.State)
	}
}

func TestShapeSuppressesClarification(t *testing.T) {
	r := New(Config{Shapes: []string{"percentage_of_total"}})
	out := r.Resolve("what percentage of applications have a risk score over 600", nil, twoScoreCache())

	if out.State != StateResolved {
		t.Fatalf("recognized shape should proceed without clarification, got %v", out.State)
	}
	if len(out.Delta.Shapes) != 1 || out.Delta.Shapes[0] != "percentage_of_total" {
		t.Errorf("shapes = %v", out.Delta.Shapes)
	}
}

func TestResolveClarificationByOrdinal(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)
	if first.State != StateNeedsClarification {
		t.Fatal("expected clarification")
	}

	current := conversation.Intent{}
	current.Merge(first.Delta)

	out := r.ResolveClarification("the first one", *first.Clarification, current, cache)
	if out.State != StateResolved {
		t.Fatalf("ordinal answer should resolve, got %v", out.State)
	}
	// Candidates are in deterministic alphabetical order.
	want := first.Clarification.Candidates[0].Ref
	if len(out.Delta.Columns) != 1 || out.Delta.Columns[0] != want {
		t.Errorf("columns = %v, want [%v]", out.Delta.Columns, want)
	}
}

func TestResolveClarificationByName(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)

	current := conversation.Intent{}
	current.Merge(first.Delta)

	out := r.ResolveClarification("use the risk rating", *first.Clarification, current, cache)
	if out.State != StateResolved {
		t.Fatalf("state = %v, want resolved", out.State)
	}
	want := schema.ColumnRef{Table: "applications", Column: "risk_rating"}
	if len(out.Delta.Columns) != 1 || out.Delta.Columns[0] != want {
		t.Errorf("columns = %v, want [%v]", out.Delta.Columns, want)
	}
}

func TestClarificationMergePreservesEarlierFields(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)

	current := conversation.Intent{}
	current.Merge(first.Delta)
	if !current.HasTable() {
		t.Fatal("fixture should resolve the customers table on the first pass")
	}

	out := r.ResolveClarification("use the risk rating", *first.Clarification, current, cache)
	current.Merge(out.Delta)

	// The customers table resolved before the clarification survives the
	// merge; the clarified column's table joins it.
	for _, want := range []string{"applications", "customers"} {
		found := false
		for _, tbl := range current.Tables {
			if tbl == want {
				found = true
			}
		}
		if !found {
			t.Errorf("table %q missing after merge: %v", want, current.Tables)
		}
	}
	if len(current.Ambiguities) != 0 {
		t.Errorf("ambiguities should be cleared, got %v", current.Ambiguities)
	}
}

func TestUnmatchedAnswerRepeatsQuestion(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)

	current := conversation.Intent{}
	current.Merge(first.Delta)

	out := r.ResolveClarification("hmm not sure really", *first.Clarification, current, cache)
	if out.State != StateNeedsClarification {
		t.Fatalf("state = %v, want needs_clarification", out.State)
	}
	if out.Clarification == nil || out.Clarification.Role != first.Clarification.Role {
		t.Error("the outstanding clarification should be repeated")
	}
}

func TestFillerAnswerDoesNotPickCandidate(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)

	current := conversation.Intent{}
	current.Merge(first.Delta)

	// Short filler tokens ("i", "a") overlap column names by accident and
	// must never count as a choice.
	for _, answer := range []string{"I do not know", "uh, a tough one"} {
		out := r.ResolveClarification(answer, *first.Clarification, current, cache)
		if out.State != StateNeedsClarification {
			t.Errorf("answer %q resolved to %v, want needs_clarification", answer, out.State)
		}
		if len(out.Delta.Columns) != 0 {
			t.Errorf("answer %q picked %v without the user choosing", answer, out.Delta.Columns)
		}
	}
}

func TestAnswerMatchingBothCandidatesDoesNotPick(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)

	current := conversation.Intent{}
	current.Merge(first.Delta)

	// "risk" overlaps both candidates equally; a tie is not a choice.
	out := r.ResolveClarification("the risk one", *first.Clarification, current, cache)
	if out.State != StateNeedsClarification {
		t.Fatalf("tied answer resolved to %v, want needs_clarification", out.State)
	}
	if len(out.Delta.Columns) != 0 {
		t.Errorf("tied answer picked %v", out.Delta.Columns)
	}
}

func TestUnmatchedAnswerKeepsOtherAmbiguities(t *testing.T) {
	r := New(Config{})
	cache := twoScoreCache()
	first := r.Resolve("what is the risk score for customers", nil, cache)

	current := conversation.Intent{}
	current.Merge(first.Delta)
	current.Ambiguities = append(current.Ambiguities, conversation.Ambiguity{
		Role: "status",
		Candidates: []conversation.Candidate{
			{Ref: schema.ColumnRef{Table: "customers", Column: "status"}},
			{Ref: schema.ColumnRef{Table: "applications", Column: "status"}},
		},
	})

	out := r.ResolveClarification("hmm really unsure", *first.Clarification, current, cache)
	if out.State != StateNeedsClarification {
		t.Fatalf("state = %v, want needs_clarification", out.State)
	}

	// Merging the repeat outcome must not clear the outstanding roles.
	merged := current.Clone()
	merged.Merge(out.Delta)
	if len(merged.Ambiguities) != 2 {
		t.Errorf("ambiguities after repeat merge = %v, want both roles kept", merged.Ambiguities)
	}
}

func TestNoTableAsksForTable(t *testing.T) {
	r := New(Config{})
	out := r.Resolve("tell me about the gizmos", nil, singleScoreCache())

	if out.State != StateNeedsClarification {
		t.Fatalf("state = %v, want needs_clarification", out.State)
	}
	if out.Clarification == nil || out.Clarification.Role != "table" {
		t.Fatalf("expected a table clarification, got %+v", out.Clarification)
	}
}

func TestCheckRelevance(t *testing.T) {
	r := New(Config{})
	cache := singleScoreCache()

	if rel := r.CheckRelevance("what is the weather tomorrow", cache); rel.Relevant {
		t.Errorf("off-domain question marked relevant: %+v", rel)
	}
	if rel := r.CheckRelevance("average risk score by region", cache); !rel.Relevant {
		t.Errorf("on-domain question marked irrelevant: %+v", rel)
	}
}

func TestDetectAggregations(t *testing.T) {
	tests := []struct {
		question string
		fn       string
	}{
		{"how many customers are there", "count"},
		{"total amount last month", "sum"},
		{"average risk score", "avg"},
		{"highest risk score", "max"},
		{"lowest risk score", "min"},
	}
	for _, tt := range tests {
		aggs := detectAggregations(tt.question)
		if len(aggs) == 0 || aggs[0].Function != tt.fn {
			t.Errorf("detectAggregations(%q) = %v, want %s", tt.question, aggs, tt.fn)
		}
	}
}

func TestDetectFilters(t *testing.T) {
	tests := []struct {
		question string
		op       string
		value    string
	}{
		{"risk score above 700", ">", "700"},
		{"scores over 8.5", ">", "8.5"},
		{"at least 10 transactions", ">=", "10"},
		{"below 50", "<", "50"},
		{"exactly 3", "=", "3"},
	}
	for _, tt := range tests {
		fs := detectFilters(tt.question)
		if len(fs) != 1 || fs[0].Operator != tt.op || fs[0].Value != tt.value {
			t.Errorf("detectFilters(%q) = %+v, want %s %s", tt.question, fs, tt.op, tt.value)
		}
	}
}

func TestDateAliasBindsColumn(t *testing.T) {
	cache := schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{Name: "transactions", Columns: []schema.RawColumn{
				{Name: "amount", BusinessTerms: []string{"amount"}},
				{Name: "created_at", Type: "timestamp"},
			}},
		},
		DateAliases: []schema.DateAlias{
			{Alias: "last month", Column: schema.ColumnRef{Table: "transactions", Column: "created_at"}},
		},
	}, 1)

	r := New(Config{})
	out := r.Resolve("total amount last month", nil, cache)
	if out.State != StateResolved {
		t.Fatalf("state = %v", out.State)
	}

	found := false
	for _, f := range out.Delta.Filters {
		if f.DateAlias == "last month" && f.Column.Column == "created_at" {
			found = true
		}
	}
	if !found {
		t.Errorf("date alias filter missing: %+v", out.Delta.Filters)
	}
}

func TestDateAliasOrderIsStable(t *testing.T) {
	cache := schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{Name: "transactions", Columns: []schema.RawColumn{
				{Name: "created_at", Type: "timestamp"},
				{Name: "settled_at", Type: "timestamp"},
			}},
		},
		DateAliases: []schema.DateAlias{
			{Alias: "last week", Column: schema.ColumnRef{Table: "transactions", Column: "settled_at"}},
			{Alias: "last month", Column: schema.ColumnRef{Table: "transactions", Column: "created_at"}},
		},
	}, 1)

	// Alias filters come out in sorted order on every run, keeping the
	// generation prompt identical for identical inputs.
	for i := 0; i < 10; i++ {
		got := detectDateAliases("compare last month against last week", cache)
		if len(got) != 2 || got[0].DateAlias != "last month" || got[1].DateAlias != "last week" {
			t.Fatalf("run %d: filters = %+v", i, got)
		}
	}
}
