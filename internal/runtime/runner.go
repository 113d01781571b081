package runtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/llm"
	"github.com/squadlite/squadlite/internal/store"
)

// Store is the slice of the coordination plane the agent loops and their
// tool dispatcher need.
type Store interface {
	GetAgent(ctx context.Context, agentID string) (*store.Agent, error)
	RegisterAgent(ctx context.Context, agentID string, agentType store.AgentType, specialization *store.Specialization, parentID *string) (*store.Agent, error)
	ListAgentsByTypeStatus(ctx context.Context, agentType store.AgentType, statuses []store.AgentStatus) ([]*store.Agent, error)
	GetOrCreateSession(ctx context.Context, agentID string) (string, error)
	UpdateAgentStatus(ctx context.Context, agentID string, status store.AgentStatus, taskID *string) error
	AddTokens(ctx context.Context, agentID string, inputTokens, outputTokens int64) error
	GetTask(ctx context.Context, taskID string) (*store.Task, error)
	CreateTask(ctx context.Context, title, description string, parentTaskID *string) (*store.Task, error)
	AssignTask(ctx context.Context, taskID, agentID string) (*store.Task, error)
	CompleteTask(ctx context.Context, taskID, result string) (*store.Task, error)
	GetAgentTasks(ctx context.Context, agentID string) ([]*store.Task, error)
	SendMessage(ctx context.Context, fromAgent, toAgent, content string, msgType store.MessageType, threadID string, priority store.MessagePriority) (*store.Message, error)
	CheckInboxPreviews(ctx context.Context, agentID string, limit int) ([]*store.MessagePreview, error)
	ReadMessage(ctx context.Context, messageID string) (*store.Message, error)
	CreateCheckpoint(ctx context.Context, agentID string, summary store.CheckpointSummary, resume store.ResumePointer, tokensUsed int64) (*store.Checkpoint, error)
}

// LLM is the chat surface the loops run against, satisfied by *llm.Client.
type LLM interface {
	CallOnce(ctx context.Context, systemPrompt, userPrompt string) (llm.TextResult, error)
	Run(ctx context.Context, systemPrompt, userPrompt string, dispatcher llm.Dispatcher, onEvent llm.EventFunc) (llm.Result, error)
}

// Runner is the shared scaffolding every agent process runs through,
// regardless of whether it ends up executing the director or specialist
// loop: resolve its durable session, mark itself working, run its loop,
// mark itself completed or error, then return for the process to exit.
type Runner struct {
	store       Store
	llm         LLM
	logger      *logger.Logger
	waitTimeout time.Duration
}

// NewRunner wires the LLM client and store a launched agent process needs.
func NewRunner(st Store, client LLM, runtimeCfg config.RuntimeConfig, log *logger.Logger) *Runner {
	waitTimeout := runtimeCfg.DirectorWaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = directorWaitTimeout
	}
	return &Runner{
		store:       st,
		llm:         client,
		logger:      log.WithFields(zap.String("component", "runtime")),
		waitTimeout: waitTimeout,
	}
}

// Run executes agentID's assigned work end to end: it loads the agent and
// its task, dispatches to the director or specialist loop, and, once the
// agent record has loaded, leaves it in a terminal status (completed or
// error) unless that final status write itself fails.
func (r *Runner) Run(ctx context.Context, agentID string, onEvent llm.EventFunc) error {
	log := r.logger.WithFields(zap.String("agent_id", agentID))

	agent, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("runtime: load agent: %w", err)
	}

	sessionID, err := r.store.GetOrCreateSession(ctx, agentID)
	if err != nil {
		r.markError(ctx, agentID, err)
		return fmt.Errorf("runtime: resolve session: %w", err)
	}
	log = log.WithFields(zap.String("session_id", sessionID))

	if err := r.store.UpdateAgentStatus(ctx, agentID, store.AgentStatusWorking, agent.TaskID); err != nil {
		r.markError(ctx, agentID, err)
		return fmt.Errorf("runtime: mark working: %w", err)
	}

	var task *store.Task
	if agent.TaskID != nil {
		task, err = r.store.GetTask(ctx, *agent.TaskID)
		if err != nil {
			r.markError(ctx, agentID, err)
			return err
		}
	}

	var runErr error
	switch agent.Type {
	case store.AgentTypeDirector:
		runErr = r.runDirector(ctx, agent, task, onEvent)
	case store.AgentTypeSpecialist:
		runErr = r.runSpecialist(ctx, agent, task, onEvent)
	default:
		runErr = fmt.Errorf("runtime: unknown agent type %q", agent.Type)
	}

	if runErr != nil {
		log.Error("agent run failed", zap.Error(runErr))
		r.markError(ctx, agentID, runErr)
		return runErr
	}

	if err := r.store.UpdateAgentStatus(ctx, agentID, store.AgentStatusCompleted, agent.TaskID); err != nil {
		log.Error("failed to mark agent completed", zap.Error(err))
		return err
	}
	log.Info("agent run completed")
	return nil
}

func (r *Runner) markError(ctx context.Context, agentID string, cause error) {
	if err := r.store.UpdateAgentStatus(ctx, agentID, store.AgentStatusError, nil); err != nil {
		r.logger.Error("failed to mark agent error", zap.String("agent_id", agentID), zap.Error(err), zap.NamedError("cause", cause))
	}
}
