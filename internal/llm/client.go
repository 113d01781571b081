// Package llm implements the agentic turn loop each agent process runs:
// one Claude conversation per invocation, dispatching the tool catalogue
// against the coordination plane, bounded by a maximum turn count.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/squadlite/squadlite/internal/common/config"
)

// Client wraps the Anthropic Messages API with the model/turn-limit
// defaults resolved from configuration.
type Client struct {
	api      anthropic.Client
	model    anthropic.Model
	maxTurns int
}

// NewClient builds an Anthropic client from AnthropicConfig.
func NewClient(cfg config.AnthropicConfig) *Client {
	maxTurns := cfg.MaxTurn
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &Client{
		api:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:    anthropic.Model(cfg.Model),
		maxTurns: maxTurns,
	}
}

// call issues one Messages.New request with the given system prompt,
// running transcript, and tool catalogue.
func (c *Client) call(ctx context.Context, system string, messages []anthropic.MessageParam, tools []anthropic.ToolUnionParam) (*anthropic.Message, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  messages,
		Tools:     tools,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: messages.new: %w", err)
	}
	return msg, nil
}

// TextResult is the outcome of a single tool-free LLM call, used by the
// director's decompose and summarize steps.
type TextResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// CallOnce issues a single tool-free turn and returns its text content, for
// call sites that need one deterministic exchange rather than the full
// agentic loop (director decomposition and summarization).
func (c *Client) CallOnce(ctx context.Context, systemPrompt, userPrompt string) (TextResult, error) {
	msg, err := c.call(ctx, systemPrompt, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}, nil)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{
		Text:         extractText(msg),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
