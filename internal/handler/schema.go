package handler

import (
	"net/http"
	"sort"

	"github.com/queryline/queryline/internal/models"
	"github.com/queryline/queryline/internal/schema"
)

// SchemaHandler exposes the schema knowledge cache: a summary of the
// current version and an explicit rebuild trigger.
type SchemaHandler struct {
	store *schema.Store
}

func NewSchemaHandler(store *schema.Store) *SchemaHandler {
	return &SchemaHandler{store: store}
}

// Summary handles GET {prefix}/schema
func (h *SchemaHandler) Summary(w http.ResponseWriter, r *http.Request) {
	cache := h.store.Current()
	if cache == nil {
		models.WriteError(w, http.StatusServiceUnavailable, "schema knowledge cache not built yet")
		return
	}
	models.WriteJSON(w, http.StatusOK, summarize(cache))
}

// Rebuild handles POST {prefix}/schema/rebuild. Concurrent rebuild
// requests collapse into a single introspection; in-flight questions keep
// the version they started with.
func (h *SchemaHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	cache, err := h.store.Rebuild(r.Context())
	if err != nil {
		models.WriteError(w, http.StatusBadGateway, "schema rebuild failed: "+err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, summarize(cache))
}

func summarize(cache *schema.Cache) models.SchemaResponse {
	tables := make([]models.TableSummary, 0, len(cache.Tables))
	for name, t := range cache.Tables {
		tables = append(tables, models.TableSummary{
			Name:        name,
			Description: t.Description,
			Columns:     len(t.Columns),
		})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	return models.SchemaResponse{
		Version:       cache.Version,
		Tables:        tables,
		Relationships: len(cache.Relationships),
		DateAliases:   len(cache.DateAliases),
	}
}
