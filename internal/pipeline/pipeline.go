// Package pipeline orchestrates one question turn end to end: relevance,
// intent resolution, clarification, context clipping, SQL generation,
// validation with bounded regeneration, execution, and answer composition.
// Turns for the same conversation are serialized; turns across
// conversations run concurrently on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/clipper"
	"github.com/queryline/queryline/internal/composer"
	"github.com/queryline/queryline/internal/config"
	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/executor"
	"github.com/queryline/queryline/internal/generator"
	"github.com/queryline/queryline/internal/resolver"
	"github.com/queryline/queryline/internal/schema"
	"github.com/queryline/queryline/internal/validator"
)

type Pipeline struct {
	cfg       config.PipelineConfig
	schemas   *schema.Store
	convs     *conversation.Store
	resolver  *resolver.Resolver
	generator *generator.Generator
	validator *validator.Validator
	executor  *executor.Executor
	composer  *composer.Composer
	status    *StatusBoard
	pool      pond.ResultPool[Outcome]
}

func New(
	cfg config.PipelineConfig,
	schemas *schema.Store,
	convs *conversation.Store,
	res *resolver.Resolver,
	gen *generator.Generator,
	val *validator.Validator,
	exec *executor.Executor,
	comp *composer.Composer,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		schemas:   schemas,
		convs:     convs,
		resolver:  res,
		generator: gen,
		validator: val,
		executor:  exec,
		composer:  comp,
		status:    NewStatusBoard(),
		pool:      pond.NewResultPool[Outcome](cfg.MaxWorkers),
	}
}

// Status exposes the processing status board for polling handlers.
func (p *Pipeline) Status() *StatusBoard { return p.status }

// Ask runs one turn on the worker pool and waits for its outcome.
func (p *Pipeline) Ask(ctx context.Context, conversationID uuid.UUID, question string) Outcome {
	task := p.pool.Submit(func() Outcome {
		return p.run(ctx, conversationID, question)
	})
	out, err := task.Wait()
	if err != nil {
		return failure(FailInternal, err.Error())
	}
	return out
}

// Close drains the worker pool and stops the status board.
func (p *Pipeline) Close() {
	p.pool.StopAndWait()
	p.status.Close()
}

func (p *Pipeline) run(ctx context.Context, id uuid.UUID, question string) Outcome {
	conv, err := p.convs.Begin(id)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return failure(FailBusy, "a turn is already being processed for this conversation")
	case errors.Is(err, conversation.ErrExhausted):
		return failure(FailExhausted, "this conversation reached its interaction limit; start a new one")
	case err != nil:
		return failure(FailInternal, err.Error())
	}
	defer p.convs.End(id)

	p.convs.AppendTurn(id, conversation.RoleUser, question)

	cache := p.schemas.Current()
	if cache == nil {
		return p.abortNoRollback(id, FailInternal, "schema knowledge cache is not built yet")
	}

	// Kept so a fatal error discards only this turn's intent changes.
	snapshot := conv.GatheredIntent.Clone()

	var out resolver.Outcome
	if conv.Pending != nil {
		p.status.Set(id, "resolving", 0.15, "interpreting clarification answer")
		out = p.resolver.ResolveClarification(question, *conv.Pending, conv.GatheredIntent, cache)
	} else {
		p.status.Set(id, "resolving", 0.1, "checking question relevance")
		rel := p.resolver.CheckRelevance(question, cache)
		if !rel.Relevant {
			log.Info().Str("conversation_id", id.String()).Str("reason", rel.Reasoning).Msg("question outside schema domain")
			p.status.Set(id, "rejected", 1.0, "question is outside the connected dataset")
			return failure(FailDomainMismatch,
				"I can only answer questions about the connected dataset, and this one doesn't seem related. Try rephrasing it in terms of the data.")
		}

		// A fresh question starts intent gathering over; only
		// clarification answers merge into the previous delta.
		if err := p.convs.Update(id, func(c *conversation.Conversation) {
			c.GatheredIntent = conversation.Intent{}
			c.Pending = nil
			c.Rounds = 0
			c.Status = conversation.StatusGathering
		}); err != nil {
			return failure(FailInternal, err.Error())
		}
		snapshot = conversation.Intent{}

		history := p.convs.RecentTurns(id, p.cfg.HistoryWindow)
		out = p.resolver.Resolve(question, history, cache)
	}

	if err := p.convs.Update(id, func(c *conversation.Conversation) {
		c.GatheredIntent.Merge(out.Delta)
	}); err != nil {
		return failure(FailInternal, err.Error())
	}

	if out.State == resolver.StateNeedsClarification {
		return p.clarify(id, out.Clarification)
	}

	var intent conversation.Intent
	if err := p.convs.Update(id, func(c *conversation.Conversation) {
		c.Pending = nil
		c.Status = conversation.StatusGenerating
		intent = c.GatheredIntent.Clone()
	}); err != nil {
		return failure(FailInternal, err.Error())
	}

	clipped := clipper.Clip(intent, cache)
	log.Debug().
		Str("conversation_id", id.String()).
		Int("clipped_tables", len(clipped.Tables)).
		Int("schema_version", clipped.Version).
		Msg("context clipped")

	sql, failed := p.generateValidated(ctx, id, snapshot, clipped, intent, question, cache)
	if failed != nil {
		return *failed
	}

	// The intent that produced valid SQL is final for this question.
	p.convs.Update(id, func(c *conversation.Conversation) {
		c.GatheredIntent.Freeze()
		c.Status = conversation.StatusExecuting
	})
	p.status.Set(id, "executing", 0.8, "running query")

	interactionID := uuid.New()
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.ExecutionTimeoutSec)*time.Second)
	handle, err := p.executor.Execute(execCtx, sql, interactionID)
	cancel()
	if err != nil {
		// Execution failures surface verbatim and are never auto-retried.
		return p.abort(id, snapshot, FailExecution, fmt.Sprintf("query execution failed: %v", err))
	}

	p.status.Set(id, "composing", 0.9, "composing answer")
	firstPage, err := p.executor.GetPage(interactionID, 0)
	if err != nil && !errors.Is(err, executor.ErrPageOutOfRange) {
		return p.abort(id, snapshot, FailExecution, err.Error())
	}

	composeCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.CompletionTimeoutSec)*time.Second)
	answer := p.composer.Compose(composeCtx, question, handle.Columns, firstPage)
	cancel()

	p.convs.AppendTurn(id, conversation.RoleAssistant, answer)
	p.convs.SetStatus(id, conversation.StatusCompleted)
	p.status.Set(id, "completed", 1.0, "answer ready")

	return Outcome{
		Kind:          OutcomeCompleted,
		InteractionID: interactionID,
		SQL:           sql,
		Answer:        answer,
		Result:        &handle,
	}
}

// clarify records the outstanding question and either asks it or, past the
// round limit, escalates to an explicit human choice.
func (p *Pipeline) clarify(id uuid.UUID, c *conversation.Clarification) Outcome {
	rounds := 0
	p.convs.Update(id, func(conv *conversation.Conversation) {
		conv.Rounds++
		conv.Pending = c
		conv.Status = conversation.StatusClarifying
		rounds = conv.Rounds
	})

	if rounds > p.cfg.MaxClarificationRounds {
		log.Info().
			Str("conversation_id", id.String()).
			Int("rounds", rounds).
			Msg("clarification limit reached, escalating to explicit choice")
		p.status.Set(id, "awaiting_choice", 0.3, "ambiguity remains after clarification limit")
		msg := "I still can't pin this down after several attempts. Please pick one of the options explicitly:\n" + c.Question
		p.convs.AppendTurn(id, conversation.RoleAssistant, msg)
		return Outcome{
			Kind:          OutcomeHumanApproval,
			Clarification: c,
			Options:       c.Candidates,
		}
	}

	p.status.Set(id, "clarifying", 0.3, "waiting for clarification")
	p.convs.AppendTurn(id, conversation.RoleAssistant, c.Question)
	return Outcome{Kind: OutcomeClarification, Clarification: c}
}

// generateValidated runs the generate/validate loop. A Fixable verdict
// feeds its diagnostic into the next attempt; a Fatal verdict or an
// exhausted regeneration budget aborts the turn. No SQL is returned unless
// validation said Valid.
func (p *Pipeline) generateValidated(
	ctx context.Context,
	id uuid.UUID,
	snapshot conversation.Intent,
	clipped clipper.ClippedContext,
	intent conversation.Intent,
	question string,
	cache *schema.Cache,
) (string, *Outcome) {
	diagnostic := ""
	for attempt := 0; attempt <= p.cfg.MaxRegenerations; attempt++ {
		p.status.Set(id, "generating", 0.5, fmt.Sprintf("generating sql (attempt %d)", attempt+1))

		genCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.CompletionTimeoutSec)*time.Second)
		sql, err := p.generator.Generate(genCtx, clipped, intent, question, diagnostic)
		cancel()
		if err != nil {
			out := p.abort(id, snapshot, FailGeneration, fmt.Sprintf("could not generate a query: %v", err))
			return "", &out
		}

		p.convs.SetStatus(id, conversation.StatusValidating)
		p.status.Set(id, "validating", 0.65, "validating generated sql")

		valCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.ExecutionTimeoutSec)*time.Second)
		verdict := p.validator.Validate(valCtx, sql, cache)
		cancel()

		switch verdict.Status {
		case validator.Valid:
			return sql, nil
		case validator.Fixable:
			diagnostic = verdict.Diagnostic
			log.Info().
				Str("conversation_id", id.String()).
				Int("attempt", attempt+1).
				Str("diagnostic", diagnostic).
				Msg("validation failed, regenerating")
		case validator.Fatal:
			out := p.abort(id, snapshot, FailValidation, "the generated query was rejected: "+verdict.Diagnostic)
			return "", &out
		}
	}

	out := p.abort(id, snapshot, FailValidation,
		fmt.Sprintf("query still failed validation after %d attempts: %s", p.cfg.MaxRegenerations+1, diagnostic))
	return "", &out
}

// abort moves the conversation to the error state and discards this turn's
// intent changes, restoring the pre-turn snapshot.
func (p *Pipeline) abort(id uuid.UUID, snapshot conversation.Intent, kind FailureKind, msg string) Outcome {
	p.convs.Update(id, func(c *conversation.Conversation) {
		c.GatheredIntent = snapshot
		c.Pending = nil
		c.Status = conversation.StatusError
	})
	p.status.Set(id, "error", 1.0, msg)
	log.Error().Str("conversation_id", id.String()).Str("kind", string(kind)).Msg(msg)
	return failure(kind, msg)
}

func (p *Pipeline) abortNoRollback(id uuid.UUID, kind FailureKind, msg string) Outcome {
	p.convs.SetStatus(id, conversation.StatusError)
	p.status.Set(id, "error", 1.0, msg)
	log.Error().Str("conversation_id", id.String()).Str("kind", string(kind)).Msg(msg)
	return failure(kind, msg)
}
