package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/llm"
	"github.com/squadlite/squadlite/internal/store"
)

// runSpecialist implements the specialist execution loop: run the
// assigned task through the full tool-bearing agentic loop, emit
// sentinel-wrapped output, write one checkpoint, and report the result to
// its parent director if it has one.
func (r *Runner) runSpecialist(ctx context.Context, agent *store.Agent, task *store.Task, onEvent llm.EventFunc) error {
	if task == nil {
		return fmt.Errorf("runtime: specialist %s has no assigned task", agent.AgentID)
	}
	log := r.logger.WithFields(zap.String("agent_id", agent.AgentID), zap.String("task_id", task.TaskID))

	system := fmt.Sprintf(
		"You are a %s specialist agent. Execute the assigned task directly and report your result. "+
			"Use the available tools to coordinate with other agents, manage tasks, and checkpoint your progress.",
		specializationOf(agent),
	)
	userPrompt := task.Title + "\n\n" + task.Description

	// Token usage is persisted per turn, not once at loop exit, so a kill
	// mid-loop never loses the spend of turns that already happened.
	hook := func(ev llm.Event) {
		if ev.Kind == llm.EventTurnDone {
			if err := r.store.AddTokens(ctx, agent.AgentID, ev.InputTokens, ev.OutputTokens); err != nil {
				log.Warn("failed to persist turn token usage", zap.Error(err))
			}
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	dispatcher := newToolDispatcher(r.store, agent)
	result, err := r.llm.Run(ctx, system, userPrompt, dispatcher, hook)
	if err != nil {
		return fmt.Errorf("runtime: specialist agentic loop: %w", err)
	}
	if result.StopReason == llm.StopMaxTurns {
		log.Warn("agentic loop exhausted max turns", zap.Int("turns", result.Turns))
	}

	fmt.Println("=== SPECIALIST OUTPUT ===")
	fmt.Println(result.FinalText)
	fmt.Println("=== END OUTPUT ===")

	if _, err := r.store.CreateCheckpoint(ctx, agent.AgentID,
		store.CheckpointSummary{Goal: task.Title, Completed: []string{"task executed"}},
		store.ResumePointer{NextAction: "none", Phase: "complete"},
		result.InputTokens+result.OutputTokens,
	); err != nil {
		log.Warn("failed to write completion checkpoint", zap.Error(err))
	}

	if agent.ParentID != nil && *agent.ParentID != "" {
		if _, err := r.store.SendMessage(ctx, agent.AgentID, *agent.ParentID, result.FinalText, store.MessageTypeResult, "", store.PriorityNormal); err != nil {
			log.Warn("failed to notify parent director", zap.Error(err))
		}
	}

	return nil
}

func specializationOf(agent *store.Agent) string {
	if agent.Specialization == nil {
		return "general"
	}
	return string(*agent.Specialization)
}
