package pipeline

import (
	"github.com/google/uuid"

	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/executor"
)

// Kind discriminates pipeline outcomes. Every stage returns a typed outcome
// rather than throwing past its boundary; the handler maps these to HTTP.
type Kind string

const (
	// OutcomeCompleted carries the final answer, SQL and result handle.
	OutcomeCompleted Kind = "completed"
	// OutcomeClarification pauses the turn on a question for the user.
	OutcomeClarification Kind = "clarification"
	// OutcomeHumanApproval surfaces exhausted ambiguity as an explicit
	// multiple-choice decision, not an error.
	OutcomeHumanApproval Kind = "human_approval"
	// OutcomeFailure is a user-visible failure with a plain message.
	OutcomeFailure Kind = "failure"
)

// FailureKind is the error taxonomy.
type FailureKind string

const (
	FailDomainMismatch     FailureKind = "domain_mismatch"
	FailUnresolvableIntent FailureKind = "unresolvable_intent"
	FailGeneration         FailureKind = "generation_failure"
	FailValidation         FailureKind = "validation_failure"
	FailExecution          FailureKind = "execution_failure"
	FailBusy               FailureKind = "conversation_busy"
	FailExhausted          FailureKind = "conversation_exhausted"
	FailInternal           FailureKind = "internal"
)

// Failure is a user-visible failure: a plain-language message plus the
// implicit option to rephrase.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Outcome is the structured result of one pipeline turn.
type Outcome struct {
	Kind          Kind                          `json:"kind"`
	InteractionID uuid.UUID                     `json:"interaction_id,omitempty"`
	SQL           string                        `json:"sql,omitempty"`
	Answer        string                        `json:"answer,omitempty"`
	Result        *executor.Handle              `json:"result,omitempty"`
	Clarification *conversation.Clarification   `json:"clarification,omitempty"`
	Options       []conversation.Candidate      `json:"options,omitempty"`
	Failure       *Failure                      `json:"failure,omitempty"`
}

func failure(kind FailureKind, message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Failure: &Failure{Kind: kind, Message: message}}
}
