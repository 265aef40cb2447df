package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/models"
	"github.com/queryline/queryline/internal/pipeline"
)

// ConversationsHandler serves conversation snapshots and processing status.
type ConversationsHandler struct {
	convs  *conversation.Store
	status *pipeline.StatusBoard
}

func NewConversationsHandler(convs *conversation.Store, status *pipeline.StatusBoard) *ConversationsHandler {
	return &ConversationsHandler{convs: convs, status: status}
}

// Get handles GET {prefix}/conversations/{id}
func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.convs.Get(id)
	if errors.Is(err, conversation.ErrNotFound) {
		models.WriteError(w, http.StatusNotFound, "conversation not found")
		return
	}

	models.WriteJSON(w, http.StatusOK, models.ConversationResponse{
		ID:           conv.ID.String(),
		Status:       string(conv.Status),
		Turns:        conv.Turns,
		Rounds:       conv.Rounds,
		Interactions: conv.Interactions,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	})
}

// Status handles GET {prefix}/conversations/{id}/status
func (h *ConversationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	ps, found := h.status.Get(id)
	if !found {
		models.WriteError(w, http.StatusNotFound, "no processing status for conversation")
		return
	}

	models.WriteJSON(w, http.StatusOK, models.StatusResponse{
		ConversationID: id.String(),
		Processing:     ps,
	})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid "+param+": "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}
