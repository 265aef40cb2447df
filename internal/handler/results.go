package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/queryline/queryline/internal/executor"
	"github.com/queryline/queryline/internal/models"
)

// ResultsHandler serves stored result pages. Pages are read-only views of
// an already-executed query; nothing here re-executes SQL.
type ResultsHandler struct {
	exec *executor.Executor
}

func NewResultsHandler(exec *executor.Executor) *ResultsHandler {
	return &ResultsHandler{exec: exec}
}

// Page handles GET {prefix}/results/{interaction_id}/pages/{index}
func (h *ResultsHandler) Page(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "interaction_id")
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid page index: "+err.Error())
		return
	}

	rows, err := h.exec.GetPage(id, index)
	switch {
	case errors.Is(err, executor.ErrResultNotFound):
		models.WriteError(w, http.StatusNotFound, "result not found or expired")
		return
	case errors.Is(err, executor.ErrPageOutOfRange):
		models.WriteError(w, http.StatusNotFound, "page index out of range")
		return
	case err != nil:
		models.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	handle, err := h.exec.Metadata(id)
	if err != nil {
		models.WriteError(w, http.StatusNotFound, "result not found or expired")
		return
	}

	models.WriteJSON(w, http.StatusOK, models.PageResponse{
		InteractionID: id.String(),
		PageIndex:     index,
		PageSize:      handle.PageSize,
		PageCount:     handle.PageCount,
		TotalRows:     handle.TotalRows,
		Columns:       handle.Columns,
		Rows:          rows,
	})
}
