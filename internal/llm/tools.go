package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
)

// Dispatcher executes one named tool call against the coordination plane
// (message bus, task store, agent registry) and returns its result as
// model-facing text plus an error flag. Concrete implementations live in
// internal/runtime, which has access to the store this package does not
// depend on directly.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, input map[string]any) (result string, isError bool)
}

func strProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func objectSchema(properties map[string]any, required ...string) anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Catalogue returns the ten tools every agent's turn loop is offered, per
// the coordination plane's message/task/checkpoint/registry surface.
func Catalogue() []anthropic.ToolUnionParam {
	tools := []anthropic.ToolParam{
		{
			Name:        "checkInbox",
			Description: anthropic.String("List truncated previews of this agent's unread inbox messages, highest priority first, then FIFO."),
			InputSchema: objectSchema(map[string]any{
				"limit": intProp("maximum number of previews to return, default 10"),
			}),
		},
		{
			Name:        "readMessage",
			Description: anthropic.String("Fetch the full content of one inbox message by id and mark it read."),
			InputSchema: objectSchema(map[string]any{
				"messageId": strProp("id of the message to read"),
			}, "messageId"),
		},
		{
			Name:        "sendMessage",
			Description: anthropic.String("Send a message to another agent's inbox."),
			InputSchema: objectSchema(map[string]any{
				"toAgentId": strProp("recipient agent id"),
				"content":   strProp("message body"),
				"type":      strProp("one of task, result, status, error"),
				"priority":  strProp("one of high, normal, low; default normal"),
				"threadId":  strProp("optional thread id to continue an existing conversation"),
			}, "toAgentId", "content", "type"),
		},
		{
			Name:        "checkpoint",
			Description: anthropic.String("Persist a resumable progress checkpoint: goal, completed/pending work, decisions, and the next action."),
			InputSchema: objectSchema(map[string]any{
				"goal":          strProp("overall goal this agent is working toward"),
				"completed":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "work completed so far"},
				"pending":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "work still pending"},
				"decisions":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "decisions made and their rationale"},
				"nextAction":    strProp("the concrete next step to take on resume"),
				"phase":         strProp("current phase label"),
				"context":       strProp("optional free-form context to carry into resume"),
				"tokensUsed":    intProp("cumulative tokens spent so far"),
			}, "goal", "nextAction", "phase"),
		},
		{
			Name:        "createTask",
			Description: anthropic.String("Create a new task, optionally as a subtask of an existing one."),
			InputSchema: objectSchema(map[string]any{
				"title":        strProp("short task title"),
				"description":  strProp("full task description"),
				"parentTaskId": strProp("optional parent task id"),
			}, "title", "description"),
		},
		{
			Name:        "assignTask",
			Description: anthropic.String("Assign a pending task to an agent, transitioning it to assigned."),
			InputSchema: objectSchema(map[string]any{
				"taskId":  strProp("task to assign"),
				"agentId": strProp("agent to assign it to"),
			}, "taskId", "agentId"),
		},
		{
			Name:        "completeTask",
			Description: anthropic.String("Mark a task completed and attach its result."),
			InputSchema: objectSchema(map[string]any{
				"taskId": strProp("task to complete"),
				"result": strProp("result text"),
			}, "taskId", "result"),
		},
		{
			Name:        "getTaskStatus",
			Description: anthropic.String("Fetch the current status and result (if any) of a task."),
			InputSchema: objectSchema(map[string]any{
				"taskId": strProp("task id"),
			}, "taskId"),
		},
		{
			Name:        "listAgents",
			Description: anthropic.String("List known agents, optionally filtered by type and status."),
			InputSchema: objectSchema(map[string]any{
				"type":    strProp("optional: director or specialist"),
				"status":  strProp("optional comma-separated statuses: idle,working,waiting,completed,error"),
			}),
		},
		{
			Name:        "spawnSpecialist",
			Description: anthropic.String("Create a new specialist agent record with the given specialization. Director-only. Does not start the agent's process or assign it work — that happens once a task is assigned to it and the change-stream watcher picks it up."),
			InputSchema: objectSchema(map[string]any{
				"specialization": strProp("one of researcher, writer, analyst, general"),
			}, "specialization"),
		},
	}

	unions := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		unions = append(unions, anthropic.ToolUnionParam{OfTool: &t})
	}
	return unions
}
