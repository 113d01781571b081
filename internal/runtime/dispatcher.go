// Package runtime implements the director and specialist execution loops
// that run inside each agent's sandboxed OS process: shared bootstrap
// (resolve session, mark working, execute, mark terminal), the director's
// decompose/spawn/wait/aggregate/summarize orchestration, and the
// specialist's single-task agentic loop, wired to the LLM tool catalogue.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/squadlite/squadlite/internal/common/errors"
	"github.com/squadlite/squadlite/internal/llm"
	"github.com/squadlite/squadlite/internal/store"
)

// toolDispatcher implements llm.Dispatcher against the coordination-plane
// store, scoped to one running agent.
type toolDispatcher struct {
	store   Store
	agentID string
	agent   *store.Agent
}

func newToolDispatcher(st Store, agent *store.Agent) *toolDispatcher {
	return &toolDispatcher{store: st, agentID: agent.AgentID, agent: agent}
}

func (d *toolDispatcher) Dispatch(ctx context.Context, toolName string, input map[string]any) (string, bool) {
	result, err := d.dispatch(ctx, toolName, input)
	if err != nil {
		return err.Error(), true
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return err.Error(), true
	}
	return string(encoded), false
}

func (d *toolDispatcher) dispatch(ctx context.Context, toolName string, input map[string]any) (any, error) {
	switch toolName {
	case "checkInbox":
		limit := 10
		if v, ok := input["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		return d.store.CheckInboxPreviews(ctx, d.agentID, limit)

	case "readMessage":
		messageID, _ := input["messageId"].(string)
		if messageID == "" {
			return nil, fmt.Errorf("readMessage: messageId is required")
		}
		return d.store.ReadMessage(ctx, messageID)

	case "sendMessage":
		toAgent, _ := input["toAgentId"].(string)
		content, _ := input["content"].(string)
		msgType, _ := input["type"].(string)
		if toAgent == "" || content == "" || msgType == "" {
			return nil, fmt.Errorf("sendMessage: toAgentId, content, and type are required")
		}
		priority, _ := input["priority"].(string)
		threadID, _ := input["threadId"].(string)
		msg, err := d.store.SendMessage(ctx, d.agentID, toAgent, content, store.MessageType(msgType), threadID, store.MessagePriority(priority))
		if err != nil {
			return nil, err
		}
		return map[string]string{"messageId": msg.MessageID, "threadId": msg.ThreadID}, nil

	case "checkpoint":
		return d.dispatchCheckpoint(ctx, input)

	case "createTask":
		title, _ := input["title"].(string)
		description, _ := input["description"].(string)
		if title == "" || description == "" {
			return nil, fmt.Errorf("createTask: title and description are required")
		}
		var parentTaskID *string
		if v, ok := input["parentTaskId"].(string); ok && v != "" {
			parentTaskID = &v
		}
		return d.store.CreateTask(ctx, title, description, parentTaskID)

	case "assignTask":
		taskID, _ := input["taskId"].(string)
		agentID, _ := input["agentId"].(string)
		if taskID == "" || agentID == "" {
			return nil, fmt.Errorf("assignTask: taskId and agentId are required")
		}
		return d.store.AssignTask(ctx, taskID, agentID)

	case "completeTask":
		taskID, _ := input["taskId"].(string)
		result, _ := input["result"].(string)
		if taskID == "" {
			return nil, fmt.Errorf("completeTask: taskId is required")
		}
		return d.store.CompleteTask(ctx, taskID, result)

	case "getTaskStatus":
		taskID, _ := input["taskId"].(string)
		if taskID == "" {
			return nil, fmt.Errorf("getTaskStatus: taskId is required")
		}
		return d.store.GetTask(ctx, taskID)

	case "listAgents":
		agentType, _ := input["type"].(string)
		var statuses []store.AgentStatus
		if raw, ok := input["status"].(string); ok && raw != "" {
			for _, s := range strings.Split(raw, ",") {
				statuses = append(statuses, store.AgentStatus(strings.TrimSpace(s)))
			}
		}
		return d.store.ListAgentsByTypeStatus(ctx, store.AgentType(agentType), statuses)

	case "spawnSpecialist":
		if d.agent.Type != store.AgentTypeDirector {
			return nil, errors.TransitionViolation("spawnSpecialist: only directors may spawn specialists")
		}
		specialization, _ := input["specialization"].(string)
		if specialization == "" {
			return nil, fmt.Errorf("spawnSpecialist: specialization is required")
		}
		spec := store.Specialization(specialization)
		parentID := d.agentID
		agent, err := d.store.RegisterAgent(ctx, "", store.AgentTypeSpecialist, &spec, &parentID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"agentId": agent.AgentID}, nil

	default:
		return nil, fmt.Errorf("unknown tool %q", toolName)
	}
}

func (d *toolDispatcher) dispatchCheckpoint(ctx context.Context, input map[string]any) (any, error) {
	goal, _ := input["goal"].(string)
	nextAction, _ := input["nextAction"].(string)
	phase, _ := input["phase"].(string)
	if goal == "" || nextAction == "" || phase == "" {
		return nil, fmt.Errorf("checkpoint: goal, nextAction, and phase are required")
	}

	summary := store.CheckpointSummary{
		Goal:      goal,
		Completed: toStringSlice(input["completed"]),
		Pending:   toStringSlice(input["pending"]),
		Decisions: toStringSlice(input["decisions"]),
	}
	contextText, _ := input["context"].(string)
	resume := store.ResumePointer{NextAction: nextAction, Phase: phase, CurrentContext: contextText}

	var tokensUsed int64
	if v, ok := input["tokensUsed"].(float64); ok {
		tokensUsed = int64(v)
	}

	cp, err := d.store.CreateCheckpoint(ctx, d.agentID, summary, resume, tokensUsed)
	if err != nil {
		return nil, err
	}
	return map[string]string{"checkpointId": cp.CheckpointID, "phase": phase}, nil
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ llm.Dispatcher = (*toolDispatcher)(nil)
