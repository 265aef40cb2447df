package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/queryline/queryline/internal/database"
	"github.com/queryline/queryline/internal/models"
	"github.com/queryline/queryline/internal/schema"
)

const version = "1.0.0"

// HealthHandler handles GET /health with dependency checks.
type HealthHandler struct {
	backend database.Backend
	schemas *schema.Store
}

func NewHealthHandler(backend database.Backend, schemas *schema.Store) *HealthHandler {
	return &HealthHandler{backend: backend, schemas: schemas}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.backend != nil {
		if err := h.backend.Ping(ctx); err != nil {
			checks["database"] = "unavailable: " + err.Error()
			overallStatus = "degraded"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "disabled"
	}

	if h.schemas != nil && h.schemas.Current() != nil {
		checks["schema_cache"] = "ok"
	} else {
		checks["schema_cache"] = "not built"
		overallStatus = "degraded"
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: version,
		Checks:  checks,
	})
}
