package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/errors"
	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/store"
)

// ExecuteOptions configures one command run inside the sandbox.
type ExecuteOptions struct {
	Env       map[string]string
	TimeoutMs int64
	OnStdout  func(chunk string)
	OnStderr  func(chunk string)
}

// Orchestrator is the shared-sandbox lifecycle manager: it lazily creates
// one Docker container to back every agent in the system, and maps
// per-agent command execution onto exec sessions inside that one
// container. Pause/resume act on the whole container; kill acts on one
// agent's process tree via best-effort pattern matching.
type Orchestrator struct {
	mu          sync.Mutex
	docker      *dockerClient
	store       *store.Store
	logger      *logger.Logger
	cfg         config.SandboxConfig
	dockerCfg   config.DockerConfig
	sandboxID   string
	containerID string
	paused      bool
	running     map[string]bool
}

// NewOrchestrator builds a sandbox orchestrator. The container itself is
// not created until the first call to EnsureSandbox/Register.
func NewOrchestrator(cfg config.SandboxConfig, dockerCfg config.DockerConfig, st *store.Store, log *logger.Logger) (*Orchestrator, error) {
	dc, err := newDockerClient(dockerCfg, log)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		docker:    dc,
		store:     st,
		logger:    log.WithFields(zap.String("component", "sandbox-orchestrator")),
		cfg:       cfg,
		dockerCfg: dockerCfg,
		running:   make(map[string]bool),
	}, nil
}

// EnsureSandbox lazily creates the one shared container the first time it
// is needed, and is a no-op afterward.
func (o *Orchestrator) EnsureSandbox(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.containerID != "" {
		return o.sandboxID, nil
	}

	sandboxID := uuid.New().String()
	containerID, err := o.docker.createSandboxContainer(ctx, ContainerConfig{
		Name:   "squadlite-sandbox-" + sandboxID[:8],
		Image:  o.cfg.Image,
		Cmd:    []string{"sleep", "infinity"},
		Memory: o.cfg.MemoryMB * 1024 * 1024,
	})
	if err != nil {
		return "", errors.SandboxCreationFailure("failed to create shared sandbox container", err)
	}

	o.sandboxID = sandboxID
	o.containerID = containerID
	o.logger.Info("sandbox created", zap.String("sandbox_id", sandboxID), zap.String("container_id", containerID))
	return sandboxID, nil
}

// Register attaches an agent to the shared sandbox, creating a tracking
// record and marking the agent's sandboxStatus active.
func (o *Orchestrator) Register(ctx context.Context, agentID string, agentType store.AgentType, specialization *store.Specialization) (string, error) {
	sandboxID, err := o.EnsureSandbox(ctx)
	if err != nil {
		return "", err
	}

	if _, err := o.store.UpsertSandboxRecord(ctx, sandboxID, agentID,
		store.SandboxMetadata{AgentType: agentType, Specialization: specialization, CreatedBy: agentID},
		store.SandboxResources{CPUCount: 1, MemoryMB: int(o.cfg.MemoryMB), TimeoutMs: o.cfg.ExecTimeout.Milliseconds()},
	); err != nil {
		return "", err
	}
	if err := o.store.SetSandboxRecordStatus(ctx, sandboxID, store.SandboxRecordActive); err != nil {
		return "", err
	}
	if err := o.store.UpdateAgentSandboxStatus(ctx, agentID, &sandboxID, store.SandboxStatusActive); err != nil {
		return "", err
	}
	return sandboxID, nil
}

// RunAgent launches the agent's OS process inside the shared sandbox via
// docker exec. The agent's identity travels as CLI flags and the task body
// travels only through the AGENT_TASK environment variable, never
// interpolated into a shell command string, and stdout/stderr stream
// chunk-wise to the caller. It blocks until the process exits. A second
// call for an agent whose process is still running is rejected.
func (o *Orchestrator) RunAgent(ctx context.Context, agent *store.Agent, task *store.Task, onStdout, onStderr func(chunk string)) (ExecResult, error) {
	o.mu.Lock()
	containerID := o.containerID
	if containerID == "" {
		o.mu.Unlock()
		return ExecResult{}, errors.SandboxNotFound("sandbox not created for agent " + agent.AgentID)
	}
	if o.running[agent.AgentID] {
		o.mu.Unlock()
		return ExecResult{}, errors.Conflict("agent " + agent.AgentID + " already has a running process")
	}
	o.running[agent.AgentID] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.running, agent.AgentID)
		o.mu.Unlock()
	}()

	cmd := []string{"squadlite-agent-runner", "--agentId", agent.AgentID, "--agentType", string(agent.Type)}
	if agent.Specialization != nil {
		cmd = append(cmd, "--specialization", string(*agent.Specialization))
	}
	if agent.ParentID != nil {
		cmd = append(cmd, "--parentId", *agent.ParentID)
	}

	env := []string{"AGENT_TASK=" + task.Title + "\n\n" + task.Description}

	timeout := o.cfg.ExecTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := o.docker.execOneShot(runCtx, containerID, cmd, env, onStdout, onStderr)
	if runCtx.Err() == context.DeadlineExceeded {
		return ExecResult{}, errors.CommandTimeout(fmt.Sprintf("agent %s exceeded timeout of %s", agent.AgentID, timeout))
	}
	if err != nil {
		return ExecResult{}, errors.CommandExecutionFailure(fmt.Sprintf("agent %s process failed", agent.AgentID), err)
	}
	return res, nil
}

// Execute runs an arbitrary command inside the shared sandbox,
// distinguishing a timed-out command from any other failure.
func (o *Orchestrator) Execute(ctx context.Context, cmd []string, opts ExecuteOptions) (ExecResult, error) {
	o.mu.Lock()
	containerID := o.containerID
	o.mu.Unlock()
	if containerID == "" {
		return ExecResult{}, errors.SandboxNotFound("sandbox not created")
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	res, err := o.docker.execOneShot(runCtx, containerID, cmd, env, opts.OnStdout, opts.OnStderr)
	if runCtx.Err() == context.DeadlineExceeded {
		return ExecResult{}, errors.CommandTimeout(fmt.Sprintf("command %v exceeded timeout", cmd))
	}
	if err != nil {
		return ExecResult{}, errors.CommandExecutionFailure(fmt.Sprintf("command %v failed", cmd), err)
	}
	return res, nil
}

// Kill best-effort terminates one agent's process inside the shared
// sandbox by command-line pattern match, since Docker exposes no "kill
// this one exec session" primitive.
func (o *Orchestrator) Kill(ctx context.Context, agentID string) error {
	o.mu.Lock()
	containerID := o.containerID
	sandboxID := o.sandboxID
	o.mu.Unlock()
	if containerID == "" {
		return errors.SandboxNotFound("sandbox not created for agent " + agentID)
	}

	if err := o.docker.killProcessByPattern(ctx, containerID, "--agentId "+agentID); err != nil {
		return errors.CommandExecutionFailure("failed to kill agent process", err)
	}
	if err := o.store.SetSandboxRecordStatusForAgent(ctx, sandboxID, agentID, store.SandboxRecordKilled); err != nil {
		o.logger.Warn("failed to mark sandbox record killed", zap.Error(err))
	}
	return o.store.UpdateAgentSandboxStatus(ctx, agentID, &sandboxID, store.SandboxStatusKilled)
}

// KillSandbox stops and removes the shared container entirely, ending
// every agent process running inside it.
func (o *Orchestrator) KillSandbox(ctx context.Context) error {
	o.mu.Lock()
	containerID := o.containerID
	sandboxID := o.sandboxID
	o.mu.Unlock()
	if containerID == "" {
		return nil
	}

	if err := o.docker.stopAndRemoveContainer(ctx, containerID); err != nil {
		return errors.CommandExecutionFailure("failed to tear down sandbox", err)
	}

	records, err := o.store.ListSandboxRecords(ctx, sandboxID)
	if err != nil {
		o.logger.Warn("failed to list sandbox records for teardown", zap.Error(err))
	}
	for _, rec := range records {
		if err := o.store.UpdateAgentSandboxStatus(ctx, rec.AgentID, &sandboxID, store.SandboxStatusKilled); err != nil {
			o.logger.Warn("failed to mark attached agent sandbox status killed", zap.String("agent_id", rec.AgentID), zap.Error(err))
		}
	}
	if err := o.store.SetSandboxRecordStatus(ctx, sandboxID, store.SandboxRecordKilled); err != nil {
		o.logger.Warn("failed to mark sandbox records killed", zap.Error(err))
	}

	o.mu.Lock()
	o.containerID = ""
	o.mu.Unlock()
	return nil
}

// Pause suspends every process in the shared sandbox at once: the
// container-level pause affects all agents attached to it.
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	containerID := o.containerID
	sandboxID := o.sandboxID
	o.mu.Unlock()
	if containerID == "" {
		return errors.SandboxNotFound("sandbox not created")
	}

	if err := o.docker.pauseContainer(ctx, containerID); err != nil {
		return errors.CommandExecutionFailure("failed to pause sandbox", err)
	}
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	return o.store.SetSandboxRecordStatus(ctx, sandboxID, store.SandboxRecordPaused)
}

// Resume un-pauses the shared sandbox.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	containerID := o.containerID
	sandboxID := o.sandboxID
	o.mu.Unlock()
	if containerID == "" {
		return errors.SandboxNotFound("sandbox not created")
	}

	if err := o.docker.unpauseContainer(ctx, containerID); err != nil {
		return errors.CommandExecutionFailure("failed to resume sandbox", err)
	}
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	return o.store.SetSandboxRecordStatus(ctx, sandboxID, store.SandboxRecordActive)
}

// IsAgentRunning reports whether agentID currently has a live process in
// the shared sandbox.
func (o *Orchestrator) IsAgentRunning(agentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[agentID]
}

// IsPaused reports whether the shared sandbox is currently paused.
func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// SandboxID returns the shared sandbox's id, or "" if not yet created.
func (o *Orchestrator) SandboxID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sandboxID
}

// IsReady reports whether the shared sandbox container currently exists.
func (o *Orchestrator) IsReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.containerID != ""
}

// Close releases the underlying Docker client connection.
func (o *Orchestrator) Close() error {
	return o.docker.Close()
}
