package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the conversation lifecycle enum. Transitions happen strictly in
// pipeline order; only a fatal error moves a conversation to StatusError.
type Status string

const (
	StatusGathering  Status = "gathering"
	StatusClarifying Status = "clarifying"
	StatusGenerating Status = "generating"
	StatusValidating Status = "validating"
	StatusExecuting  Status = "executing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// TurnRole distinguishes who produced a turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one entry in the append-only turn log. Clarification questions
// and answers are ordinary turns, so the resolver can scan them uniformly.
type Turn struct {
	Role TurnRole  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Clarification is an outstanding question the pipeline is waiting on.
type Clarification struct {
	Question   string      `json:"question"`
	Role       string      `json:"role"` // the ambiguous semantic role
	Candidates []Candidate `json:"candidates"`
}

// Conversation is the per-conversation mutable record.
type Conversation struct {
	ID             uuid.UUID      `json:"id"`
	Turns          []Turn         `json:"turns"`
	Status         Status         `json:"status"`
	GatheredIntent Intent         `json:"gathered_intent"`
	Pending        *Clarification `json:"pending_clarification,omitempty"`
	Rounds         int            `json:"clarification_rounds"`
	Interactions   int            `json:"interactions"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

var (
	// ErrBusy means a pipeline run is already in flight for the conversation.
	ErrBusy = errors.New("conversation: turn already in progress")
	// ErrNotFound means the conversation id is unknown.
	ErrNotFound = errors.New("conversation: not found")
	// ErrExhausted means the interaction limit was reached.
	ErrExhausted = errors.New("conversation: interaction limit reached")
)

// Store keeps conversations in memory and serializes turns per
// conversation: at most one pipeline run may be in flight for a given id.
type Store struct {
	mu              sync.RWMutex
	conversations   map[uuid.UUID]*Conversation
	inflight        map[uuid.UUID]bool
	maxInteractions int
}

func NewStore(maxInteractions int) *Store {
	return &Store{
		conversations:   make(map[uuid.UUID]*Conversation),
		inflight:        make(map[uuid.UUID]bool),
		maxInteractions: maxInteractions,
	}
}

// Begin fetches or creates the conversation and marks it in flight,
// enforcing at-most-one concurrent turn per conversation and the bounded
// interaction counter. Callers must pair every successful Begin with End.
func (s *Store) Begin(id uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight[id] {
		return nil, ErrBusy
	}

	conv, ok := s.conversations[id]
	if !ok {
		now := time.Now()
		conv = &Conversation{
			ID:        id,
			Status:    StatusGathering,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.conversations[id] = conv
	}

	if conv.Interactions >= s.maxInteractions {
		return nil, ErrExhausted
	}
	conv.Interactions++

	s.inflight[id] = true
	return conv, nil
}

// End releases the in-flight marker for a conversation.
func (s *Store) End(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// Get returns a snapshot of the conversation. The snapshot is a shallow
// copy with a cloned intent so pollers never race with the pipeline's
// mutations.
func (s *Store) Get(id uuid.UUID) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	snap := *conv
	snap.Turns = append([]Turn(nil), conv.Turns...)
	snap.GatheredIntent = conv.GatheredIntent.Clone()
	return snap, nil
}

// AppendTurn adds to the append-only turn log.
func (s *Store) AppendTurn(id uuid.UUID, role TurnRole, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return
	}
	conv.Turns = append(conv.Turns, Turn{Role: role, Text: text, At: time.Now()})
	conv.UpdatedAt = time.Now()
}

// SetStatus advances the conversation lifecycle.
func (s *Store) SetStatus(id uuid.UUID, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		conv.Status = status
		conv.UpdatedAt = time.Now()
	}
}

// Update runs fn against the live conversation under the store lock. The
// pipeline uses it to merge intents and set clarifications atomically.
func (s *Store) Update(id uuid.UUID, fn func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	fn(conv)
	conv.UpdatedAt = time.Now()
	return nil
}

// RecentTurns returns up to n most recent turns, oldest first.
func (s *Store) RecentTurns(id uuid.UUID, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	turns := conv.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn(nil), turns...)
}
