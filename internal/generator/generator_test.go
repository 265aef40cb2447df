package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/queryline/queryline/internal/clipper"
	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/schema"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"tagged fence",
			"Here is the query:\n```sql\nSELECT id FROM customers;\n```\nDone.",
			"SELECT id FROM customers",
		},
		{
			"untagged fence",
			"```\nSELECT id FROM customers\n```",
			"SELECT id FROM customers",
		},
		{
			"fence with language tag line",
			"```postgresql\nSELECT id FROM customers\n```",
			"SELECT id FROM customers",
		},
		{
			"bare cte",
			"WITH x AS (SELECT id FROM customers) SELECT count(*) FROM x LIMIT 10",
			"WITH x AS (SELECT id FROM customers) SELECT count(*) FROM x LIMIT 10",
		},
		{
			"bare select in prose",
			"The answer is SELECT id FROM customers",
			"SELECT id FROM customers",
		},
		{
			"no sql at all",
			"I cannot answer that question.",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSQL(tt.text); got != tt.want {
				t.Errorf("ExtractSQL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchPatternsRankedByOverlap(t *testing.T) {
	patterns := defaultPatterns()

	got := MatchPatterns("top customers by percentage share of revenue", patterns)
	if len(got) < 2 {
		t.Fatalf("expected multiple matches, got %v", got)
	}
	// "percentage" + "share of" beats the single "top" hit.
	if got[0].Name != "percentage_breakdown" {
		t.Errorf("first pattern = %s, want percentage_breakdown", got[0].Name)
	}

	if got := MatchPatterns("hello there", patterns); len(got) != 0 {
		t.Errorf("no keywords should match, got %v", got)
	}
}

func TestLoadPatternsDefaults(t *testing.T) {
	patterns, err := LoadPatterns("")
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) == 0 {
		t.Fatal("default patterns missing")
	}
}

func promptContext() clipper.ClippedContext {
	cache := schema.Build(schema.RawSchema{
		Tables: []schema.RawTable{
			{Name: "customers", Columns: []schema.RawColumn{
				{Name: "id", Type: "integer"},
				{Name: "risk_score", Type: "numeric"},
			}},
		},
	}, 1)
	return clipper.Clip(conversation.Intent{Tables: []string{"customers"}}, cache)
}

func TestGenerateExtractsFromCompletion(t *testing.T) {
	completer := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return "```sql\nSELECT risk_score FROM customers LIMIT 100\n```", nil
	})
	g := New(completer, nil, "postgres", 0)

	sql, err := g.Generate(context.Background(), promptContext(), conversation.Intent{}, "risk scores", "")
	if err != nil {
		t.Fatal(err)
	}
	if sql != "SELECT risk_score FROM customers LIMIT 100" {
		t.Errorf("sql = %q", sql)
	}
}

func TestGenerateRetriesTransportFailures(t *testing.T) {
	calls := 0
	completer := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "```sql\nSELECT id FROM customers\n```", nil
	})
	g := New(completer, nil, "postgres", 2)

	if _, err := g.Generate(context.Background(), promptContext(), conversation.Intent{}, "ids", ""); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGenerateErrorsWhenNoSQL(t *testing.T) {
	completer := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return "I don't know.", nil
	})
	g := New(completer, nil, "postgres", 0)

	if _, err := g.Generate(context.Background(), promptContext(), conversation.Intent{}, "ids", ""); err == nil {
		t.Error("expected an error when the completion contains no SQL")
	}
}

func TestDiagnosticFeedsRegenerationPrompt(t *testing.T) {
	var captured string
	completer := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		captured = prompt
		return "```sql\nSELECT id FROM customers\n```", nil
	})
	g := New(completer, nil, "postgres", 0)

	diag := `table "customers" has no column "creditworthiness"`
	if _, err := g.Generate(context.Background(), promptContext(), conversation.Intent{}, "ids", diag); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(captured, "Previous attempt failed validation") {
		t.Error("regeneration prompt missing the failure section")
	}
	if !strings.Contains(captured, diag) {
		t.Error("regeneration prompt missing the diagnostic")
	}
}

func TestPromptIsDeterministic(t *testing.T) {
	var prompts []string
	completer := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "```sql\nSELECT id FROM customers\n```", nil
	})
	g := New(completer, defaultPatterns(), "postgres", 0)

	intent := conversation.Intent{
		Tables:  []string{"customers"},
		Columns: []schema.ColumnRef{{Table: "customers", Column: "risk_score"}},
	}
	for i := 0; i < 2; i++ {
		if _, err := g.Generate(context.Background(), promptContext(), intent, "top customers", ""); err != nil {
			t.Fatal(err)
		}
	}
	if prompts[0] != prompts[1] {
		t.Error("identical inputs rendered different prompts")
	}
}

func TestPlaceholderSubstitution(t *testing.T) {
	intent := conversation.Intent{
		Tables:  []string{"customers"},
		Columns: []schema.ColumnRef{{Table: "customers", Column: "risk_score"}},
	}
	got := substitutePlaceholders("SELECT * FROM {table} ORDER BY {column} DESC LIMIT {n}", promptContext(), intent)
	want := "SELECT * FROM customers ORDER BY risk_score DESC LIMIT 10"
	if got != want {
		t.Errorf("substituted = %q, want %q", got, want)
	}
}
