package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
)

// StopMaxTurns is the synthetic stop reason reported when the loop runs
// out of turns before the model ends the conversation on its own.
const StopMaxTurns = "max_turns"

// Result summarizes one Run: the final assistant text, why the loop
// stopped, and the cumulative token spend, so the caller can persist a
// checkpoint and reply to its parent.
type Result struct {
	FinalText    string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
	Turns        int
}

// Run drives the agentic loop: send system+user, dispatch any tool_use
// blocks through dispatcher, splice tool_result back in, and repeat until
// stop_reason is no longer tool_use or maxTurns is reached.
func (c *Client) Run(ctx context.Context, systemPrompt, userPrompt string, dispatcher Dispatcher, onEvent EventFunc) (Result, error) {
	tools := Catalogue()
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	var result Result

	for turn := 1; turn <= c.maxTurns; turn++ {
		result.Turns = turn
		emit(onEvent, Event{Kind: EventTurnStart})

		msg, err := c.call(ctx, systemPrompt, messages, tools)
		if err != nil {
			emit(onEvent, Event{Kind: EventError, Err: err})
			return result, err
		}

		result.InputTokens += msg.Usage.InputTokens
		result.OutputTokens += msg.Usage.OutputTokens

		emit(onEvent, Event{
			Kind:         EventTurnDone,
			StopReason:   string(msg.StopReason),
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		})

		messages = append(messages, msg.ToParam())

		if msg.StopReason != anthropic.StopReasonToolUse {
			result.FinalText = extractText(msg)
			result.StopReason = string(msg.StopReason)
			emit(onEvent, Event{Kind: EventLoopDone, StopReason: string(msg.StopReason)})
			return result, nil
		}

		toolResults := make([]anthropic.ContentBlockParamUnion, 0)
		for _, block := range msg.Content {
			toolUse := block.AsToolUse()
			if toolUse.ID == "" {
				continue
			}

			var input map[string]any
			_ = json.Unmarshal(toolUse.Input, &input)

			emit(onEvent, Event{Kind: EventToolStart, ToolUseID: toolUse.ID, ToolName: toolUse.Name, ToolInput: input})

			resultText, isError := dispatcher.Dispatch(ctx, toolUse.Name, input)

			emit(onEvent, Event{
				Kind:        EventToolDone,
				ToolUseID:   toolUse.ID,
				ToolName:    toolUse.Name,
				ToolResult:  resultText,
				ToolIsError: isError,
			})

			toolResults = append(toolResults, anthropic.NewToolResultBlock(toolUse.ID, resultText, isError))
		}

		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	result.StopReason = StopMaxTurns
	emit(onEvent, Event{Kind: EventLoopDone, StopReason: StopMaxTurns})
	return result, nil
}

func extractText(msg *anthropic.Message) string {
	text := ""
	for _, block := range msg.Content {
		if b := block.AsText(); b.Text != "" {
			text += b.Text
		}
	}
	return text
}

func emit(onEvent EventFunc, ev Event) {
	if onEvent != nil {
		onEvent(ev)
	}
}
