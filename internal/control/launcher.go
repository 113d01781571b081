// Package control runs one agent's OS process to completion inside the
// shared sandbox and reconciles the task-level outcome afterward. It is
// the single place that turns a captured stdout stream back into a task
// state transition, so both the REST layer (director launches) and the
// change-stream watchers (specialist launches) drive agent execution the
// same way.
package control

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/events/bus"
	"github.com/squadlite/squadlite/internal/sandbox"
	"github.com/squadlite/squadlite/internal/store"
)

const (
	directorOutputStart   = "=== DIRECTOR OUTPUT ==="
	specialistOutputStart = "=== SPECIALIST OUTPUT ==="
	outputEnd             = "=== END OUTPUT ==="
)

// Store is the slice of the coordination plane the launcher needs to load
// an agent and its task and to reconcile the outcome.
type Store interface {
	GetAgent(ctx context.Context, agentID string) (*store.Agent, error)
	GetTask(ctx context.Context, taskID string) (*store.Task, error)
	GetAgentTasks(ctx context.Context, agentID string) ([]*store.Task, error)
	CompleteTask(ctx context.Context, taskID, result string) (*store.Task, error)
	UpdateStatus(ctx context.Context, taskID string, newStatus store.TaskStatus, result *string) (*store.Task, error)
	UpdateAgentStatus(ctx context.Context, agentID string, status store.AgentStatus, taskID *string) error
}

// Sandbox is the slice of the sandbox orchestrator the launcher needs to
// attach an agent and run its process.
type Sandbox interface {
	Register(ctx context.Context, agentID string, agentType store.AgentType, specialization *store.Specialization) (string, error)
	RunAgent(ctx context.Context, agent *store.Agent, task *store.Task, onStdout, onStderr func(chunk string)) (sandbox.ExecResult, error)
	IsAgentRunning(agentID string) bool
}

// Launcher registers an agent with the shared sandbox, execs its process,
// and reconciles the task it was assigned once the process exits.
type Launcher struct {
	store   Store
	sandbox Sandbox
	bus     bus.EventBus
	logger  *logger.Logger
}

// NewLauncher builds a Launcher.
func NewLauncher(st Store, sb Sandbox, eb bus.EventBus, log *logger.Logger) *Launcher {
	return &Launcher{store: st, sandbox: sb, bus: eb, logger: log.WithFields(zap.String("component", "launcher"))}
}

// IsAgentRunning reports whether agentID already has a live process in the
// shared sandbox, used by the task watcher's double-start check.
func (l *Launcher) IsAgentRunning(agentID string) bool {
	return l.sandbox.IsAgentRunning(agentID)
}

// Run assumes the agent's task has already been transitioned to
// in_progress by the caller. It registers the agent with the shared
// sandbox, execs its process, and on exit extracts the sentinel-wrapped
// result from captured stdout to complete or fail the task.
func (l *Launcher) Run(ctx context.Context, agentID string) {
	log := l.logger.WithFields(zap.String("agent_id", agentID))

	agent, err := l.store.GetAgent(ctx, agentID)
	if err != nil {
		log.Error("failed to load agent for launch", zap.Error(err))
		return
	}

	task, err := l.resolveTask(ctx, agent)
	if err != nil {
		log.Error("failed to resolve task for launch", zap.Error(err))
		return
	}
	if task == nil {
		log.Error("launch requested for agent with no assigned task")
		return
	}
	taskID := task.TaskID

	if _, err := l.sandbox.Register(ctx, agent.AgentID, agent.Type, agent.Specialization); err != nil {
		log.Error("failed to register agent with sandbox", zap.Error(err))
		l.fail(ctx, taskID, agentID, "Error: "+err.Error())
		return
	}

	l.publishAgentStatus(ctx, agentID, store.AgentStatusWorking)

	var stdout strings.Builder
	onStdout := func(chunk string) {
		stdout.WriteString(chunk)
		l.publish(ctx, "agent.output", "launcher", map[string]interface{}{
			"agentId": agentID,
			"taskId":  taskID,
			"stream":  "stdout",
			"content": chunk,
		})
	}
	onStderr := func(chunk string) {
		l.publish(ctx, "agent.output", "launcher", map[string]interface{}{
			"agentId": agentID,
			"taskId":  taskID,
			"stream":  "stderr",
			"content": chunk,
		})
	}

	start := time.Now()
	res, runErr := l.sandbox.RunAgent(ctx, agent, task, onStdout, onStderr)
	log.Info("agent process exited", zap.Duration("duration", time.Since(start)), zap.Int("exit_code", res.ExitCode))

	if runErr != nil {
		l.fail(ctx, taskID, agentID, "Error: "+runErr.Error())
		return
	}
	if res.Error {
		l.fail(ctx, taskID, agentID, "Error: agent process exited with non-zero status")
		return
	}

	result := extractSentinel(stdout.String(), agent.Type)
	if _, err := l.store.CompleteTask(ctx, taskID, result); err != nil {
		log.Error("failed to complete task after agent success", zap.Error(err))
		return
	}
	l.publishAgentStatus(ctx, agentID, store.AgentStatusCompleted)
	l.publish(ctx, "task.status", "launcher", map[string]interface{}{
		"taskId": taskID,
		"status": string(store.TaskStatusCompleted),
	})
}

// resolveTask finds the task the agent should run: its taskId field when
// set, otherwise its most recently created non-terminal assignment. The
// fallback covers agent records written before AssignTask stamped the
// field, and restarts where the field went stale.
func (l *Launcher) resolveTask(ctx context.Context, agent *store.Agent) (*store.Task, error) {
	if agent.TaskID != nil && *agent.TaskID != "" {
		return l.store.GetTask(ctx, *agent.TaskID)
	}

	tasks, err := l.store.GetAgentTasks(ctx, agent.AgentID)
	if err != nil {
		return nil, err
	}
	var current *store.Task
	for _, t := range tasks {
		if t.Status == store.TaskStatusCompleted || t.Status == store.TaskStatusFailed {
			continue
		}
		if current == nil || t.CreatedAt.After(current.CreatedAt) {
			current = t
		}
	}
	return current, nil
}

func (l *Launcher) fail(ctx context.Context, taskID, agentID, reason string) {
	if _, err := l.store.UpdateStatus(ctx, taskID, store.TaskStatusFailed, &reason); err != nil {
		l.logger.Warn("failed to mark task failed", zap.String("task_id", taskID), zap.Error(err))
	}
	if err := l.store.UpdateAgentStatus(ctx, agentID, store.AgentStatusError, nil); err != nil {
		l.logger.Warn("failed to mark agent error after launch failure", zap.String("agent_id", agentID), zap.Error(err))
	}
	l.publishAgentStatus(ctx, agentID, store.AgentStatusError)
	l.publish(ctx, "task.status", "launcher", map[string]interface{}{
		"taskId": taskID,
		"status": string(store.TaskStatusFailed),
		"reason": reason,
	})
}

func (l *Launcher) publishAgentStatus(ctx context.Context, agentID string, status store.AgentStatus) {
	l.publish(ctx, "agent.status", "launcher", map[string]interface{}{
		"agentId": agentID,
		"status":  string(status),
	})
}

func (l *Launcher) publish(ctx context.Context, subject, source string, data map[string]interface{}) {
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, subject, bus.NewEvent(subject, source, data)); err != nil {
		l.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// extractSentinel returns the substring between the sentinel pair matching
// agentType, or the whole trimmed stdout if the sentinel is absent.
func extractSentinel(stdout string, agentType store.AgentType) string {
	start := specialistOutputStart
	if agentType == store.AgentTypeDirector {
		start = directorOutputStart
	}

	si := strings.Index(stdout, start)
	if si == -1 {
		return strings.TrimSpace(stdout)
	}
	rest := stdout[si+len(start):]

	ei := strings.Index(rest, outputEnd)
	if ei == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:ei])
}
