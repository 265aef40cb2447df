package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/queryline/queryline/internal/config"
	"github.com/queryline/queryline/internal/models"
	"github.com/queryline/queryline/internal/pipeline"
)

// QuestionsHandler handles POST {prefix}/questions
type QuestionsHandler struct {
	pipe *pipeline.Pipeline
}

func NewQuestionsHandler(pipe *pipeline.Pipeline) *QuestionsHandler {
	return &QuestionsHandler{pipe: pipe}
}

// Ask handles POST {prefix}/questions. An empty conversation_id starts a
// new conversation; subsequent requests must carry the same id to continue
// it (clarification answers included).
func (h *QuestionsHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	if strings.TrimSpace(req.Question) == "" {
		models.WriteError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.Question) > config.DefaultMaxQuestionLength {
		models.WriteError(w, http.StatusBadRequest, "question exceeds maximum length")
		return
	}

	convID := uuid.New()
	if req.ConversationID != "" {
		parsed, err := uuid.Parse(req.ConversationID)
		if err != nil {
			models.WriteError(w, http.StatusBadRequest, "invalid conversation_id: "+err.Error())
			return
		}
		convID = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutSec)*time.Second)
	defer cancel()

	outcome := h.pipe.Ask(ctx, convID, req.Question)

	code := http.StatusOK
	status := "success"
	if outcome.Kind == pipeline.OutcomeFailure {
		status = "error"
		switch outcome.Failure.Kind {
		case pipeline.FailBusy:
			code = http.StatusConflict
		case pipeline.FailExhausted:
			code = http.StatusTooManyRequests
		case pipeline.FailInternal:
			code = http.StatusInternalServerError
		default:
			// Domain-level failures are conversational answers, not
			// transport errors.
			code = http.StatusUnprocessableEntity
		}
	}

	models.WriteJSON(w, code, models.AskResponse{
		Status:         status,
		ConversationID: convID.String(),
		Outcome:        outcome,
	})
}
