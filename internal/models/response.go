package models

import (
	"time"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/executor"
	"github.com/queryline/queryline/internal/pipeline"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// AskResponse is returned by POST {prefix}/questions
type AskResponse struct {
	Status         string           `json:"status"`
	ConversationID string           `json:"conversation_id"`
	Outcome        pipeline.Outcome `json:"outcome"`
}

// ConversationResponse is returned by GET {prefix}/conversations/{id}
type ConversationResponse struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Turns        []conversation.Turn `json:"turns"`
	Rounds       int                 `json:"clarification_rounds"`
	Interactions int                 `json:"interactions"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// StatusResponse is returned by GET {prefix}/conversations/{id}/status
type StatusResponse struct {
	ConversationID string                    `json:"conversation_id"`
	Processing     pipeline.ProcessingStatus `json:"processing"`
}

// PageResponse is returned by GET {prefix}/results/{interaction_id}/pages/{index}
type PageResponse struct {
	InteractionID string         `json:"interaction_id"`
	PageIndex     int            `json:"page_index"`
	PageSize      int            `json:"page_size"`
	PageCount     int            `json:"page_count"`
	TotalRows     int            `json:"total_rows"`
	Columns       []string       `json:"columns"`
	Rows          []executor.Row `json:"rows"`
}

// TableSummary is one table in the schema summary.
type TableSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Columns     int    `json:"columns"`
}

// SchemaResponse is returned by GET {prefix}/schema
type SchemaResponse struct {
	Version       int            `json:"version"`
	Tables        []TableSummary `json:"tables"`
	Relationships int            `json:"relationships"`
	DateAliases   int            `json:"date_aliases"`
}
