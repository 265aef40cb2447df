package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/database"
	"github.com/queryline/queryline/internal/executor"
	"github.com/queryline/queryline/internal/pipeline"
	"github.com/queryline/queryline/internal/schema"
)

func TestAskRejectsBadRequests(t *testing.T) {
	h := NewQuestionsHandler(nil) // validation happens before the pipeline runs

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing question", `{"question": "   "}`},
		{"oversize question", `{"question": "` + strings.Repeat("x", 3000) + `"}`},
		{"bad conversation id", `{"question": "top customers", "conversation_id": "not-a-uuid"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.Ask(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", rr.Code)
			}
		})
	}
}

func TestConversationNotFound(t *testing.T) {
	convs := conversation.NewStore(20)
	board := pipeline.NewStatusBoard()
	defer board.Close()
	h := NewConversationsHandler(convs, board)

	r := chi.NewRouter()
	r.Get("/conversations/{id}", h.Get)
	r.Get("/conversations/{id}/status", h.Status)

	for _, path := range []string{
		"/conversations/" + uuid.NewString(),
		"/conversations/" + uuid.NewString() + "/status",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rr.Code)
		}
	}
}

func TestConversationMalformedID(t *testing.T) {
	board := pipeline.NewStatusBoard()
	defer board.Close()
	h := NewConversationsHandler(conversation.NewStore(20), board)

	r := chi.NewRouter()
	r.Get("/conversations/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/conversations/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rr.Code)
	}
}

func TestResultsPageNotFound(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	exec := executor.New(database.NewPostgresFromDB(db), 50)
	defer exec.Close()
	h := NewResultsHandler(exec)

	r := chi.NewRouter()
	r.Get("/results/{interaction_id}/pages/{index}", h.Page)

	req := httptest.NewRequest(http.MethodGet, "/results/"+uuid.NewString()+"/pages/0", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rr.Code)
	}
}

func TestSchemaSummaryBeforeFirstBuild(t *testing.T) {
	store := schema.NewStore(schema.SourceFunc(func(ctx context.Context) (schema.RawSchema, error) {
		return schema.RawSchema{}, nil
	}))
	h := NewSchemaHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/schema", nil)
	rr := httptest.NewRecorder()
	h.Summary(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503 before the first cache build", rr.Code)
	}
}
