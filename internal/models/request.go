package models

// QuestionRequest for POST {prefix}/questions
type QuestionRequest struct {
	ConversationID string `json:"conversation_id,omitempty"` // empty starts a new conversation
	Question       string `json:"question"`
	TimeoutSec     int    `json:"timeout_sec"`
}

func (r *QuestionRequest) SetDefaults() {
	if r.TimeoutSec == 0 {
		r.TimeoutSec = 120
	}
	if r.TimeoutSec < 5 {
		r.TimeoutSec = 5
	}
	if r.TimeoutSec > 600 {
		r.TimeoutSec = 600
	}
}

// RebuildRequest for POST {prefix}/schema/rebuild
type RebuildRequest struct {
	Reason string `json:"reason,omitempty"`
}
