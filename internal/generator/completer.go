package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// Completer is the narrow completion interface the generator and composer
// depend on: prompt in, text out. It is the only non-deterministic element
// in the pipeline, which is exactly why it is an interface — tests swap in
// deterministic stubs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, system, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// AnthropicCompleter backs the Completer interface with Claude or a
// compatible provider behind a base-URL override.
type AnthropicCompleter struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicCompleter(apiKey, model, baseURL string) *AnthropicCompleter {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 4096,
	}
}

func (a *AnthropicCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(a.model)),
		MaxTokens: anthropic.F(int64(a.maxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		}),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion call: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			sb.WriteString(b.Text)
		}
	}
	text := sb.String()

	log.Debug().
		Str("model", a.model).
		Str("stop_reason", string(resp.StopReason)).
		Int("chars", len(text)).
		Msg("completion received")

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("completion returned empty text")
	}
	return text, nil
}
