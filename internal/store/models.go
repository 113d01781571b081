// Package store is the MongoDB-backed coordination plane: the single
// source of truth for agents, messages, checkpoints, tasks, and sandbox
// tracking records, with the indexes and change streams the control
// plane's reactive behavior depends on.
package store

import "time"

// AgentType distinguishes a director from a specialist.
type AgentType string

const (
	AgentTypeDirector   AgentType = "director"
	AgentTypeSpecialist AgentType = "specialist"
)

// Specialization is the flavor of work a specialist performs.
type Specialization string

const (
	SpecializationResearcher Specialization = "researcher"
	SpecializationWriter     Specialization = "writer"
	SpecializationAnalyst    Specialization = "analyst"
	SpecializationGeneral    Specialization = "general"
)

// AgentStatus tracks an agent's logical lifecycle state.
type AgentStatus string

const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusWorking   AgentStatus = "working"
	AgentStatusWaiting   AgentStatus = "waiting"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusError     AgentStatus = "error"
)

// SandboxStatus describes an agent's relationship to the shared sandbox.
type SandboxStatus string

const (
	SandboxStatusNone   SandboxStatus = "none"
	SandboxStatusActive SandboxStatus = "active"
	SandboxStatusPaused SandboxStatus = "paused"
	SandboxStatusKilled SandboxStatus = "killed"
)

// TokenUsage is the cumulative, monotonically non-decreasing LLM usage
// counter attached to each agent.
type TokenUsage struct {
	TotalInputTokens  int64      `bson:"totalInputTokens"`
	TotalOutputTokens int64      `bson:"totalOutputTokens"`
	LastUpdated       *time.Time `bson:"lastUpdated,omitempty"`
}

// Agent is a persistent record for one Director or Specialist.
type Agent struct {
	AgentID         string          `bson:"agentId"`
	Type            AgentType       `bson:"type"`
	Specialization  *Specialization `bson:"specialization,omitempty"`
	Status          AgentStatus     `bson:"status"`
	SandboxID       *string         `bson:"sandboxId,omitempty"`
	SandboxStatus   SandboxStatus   `bson:"sandboxStatus"`
	ParentID        *string         `bson:"parentId,omitempty"`
	TaskID          *string         `bson:"taskId,omitempty"`
	SessionID       *string         `bson:"sessionId,omitempty"`
	TokenUsage      TokenUsage      `bson:"tokenUsage"`
	CreatedAt       time.Time       `bson:"createdAt"`
	LastHeartbeat   time.Time       `bson:"lastHeartbeat"`
}

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageTypeTask   MessageType = "task"
	MessageTypeResult MessageType = "result"
	MessageTypeStatus MessageType = "status"
	MessageTypeError  MessageType = "error"
)

// MessagePriority controls inbox ordering.
type MessagePriority string

const (
	PriorityHigh   MessagePriority = "high"
	PriorityNormal MessagePriority = "normal"
	PriorityLow    MessagePriority = "low"
)

// Message is an immutable (except ReadAt) unit of agent-to-agent
// communication.
type Message struct {
	MessageID string          `bson:"messageId"`
	FromAgent string          `bson:"fromAgent"`
	ToAgent   string          `bson:"toAgent"`
	Content   string          `bson:"content"`
	Type      MessageType     `bson:"type"`
	ThreadID  string          `bson:"threadId"`
	Priority  MessagePriority `bson:"priority"`
	ReadAt    *time.Time      `bson:"readAt,omitempty"`
	CreatedAt time.Time       `bson:"createdAt"`
}

// MessagePreview is the notification-injection projection returned by
// CheckInboxPreviews: full content is never exposed here.
type MessagePreview struct {
	MessageID string          `bson:"messageId" json:"messageId"`
	FromAgent string          `bson:"fromAgent" json:"fromAgent"`
	Type      MessageType     `bson:"type" json:"type"`
	Priority  MessagePriority `bson:"priority" json:"priority"`
	Preview   string          `bson:"preview" json:"preview"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdAt"`
}

// CheckpointSummary captures an agent's logical progress in prose form.
type CheckpointSummary struct {
	Goal      string   `bson:"goal"`
	Completed []string `bson:"completed"`
	Pending   []string `bson:"pending"`
	Decisions []string `bson:"decisions"`
}

// ResumePointer tells a restarted agent exactly where to continue.
type ResumePointer struct {
	NextAction     string `bson:"nextAction"`
	Phase          string `bson:"phase"`
	CurrentContext string `bson:"currentContext,omitempty"`
}

// Checkpoint is an append-only progress record for one agent.
type Checkpoint struct {
	CheckpointID  string            `bson:"checkpointId"`
	AgentID       string            `bson:"agentId"`
	Summary       CheckpointSummary `bson:"summary"`
	ResumePointer ResumePointer     `bson:"resumePointer"`
	TokensUsed    int64             `bson:"tokensUsed"`
	CreatedAt     time.Time         `bson:"createdAt"`
}

// TaskStatus is a node in the task lifecycle DAG.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a unit of work, optionally a subtask of another task.
type Task struct {
	TaskID       string     `bson:"taskId"`
	ParentTaskID *string    `bson:"parentTaskId,omitempty"`
	AssignedTo   *string    `bson:"assignedTo,omitempty"`
	Title        string     `bson:"title"`
	Description  string     `bson:"description"`
	Status       TaskStatus `bson:"status"`
	Result       *string    `bson:"result,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt"`
}

// SandboxRecordStatus is the sandbox-tracking lifecycle for one
// (sandbox, agent) pairing.
type SandboxRecordStatus string

const (
	SandboxRecordCreating SandboxRecordStatus = "creating"
	SandboxRecordActive   SandboxRecordStatus = "active"
	SandboxRecordPaused   SandboxRecordStatus = "paused"
	SandboxRecordResuming SandboxRecordStatus = "resuming"
	SandboxRecordKilled   SandboxRecordStatus = "killed"
)

// SandboxMetadata records who the sandbox entry belongs to.
type SandboxMetadata struct {
	AgentType      AgentType       `bson:"agentType"`
	Specialization *Specialization `bson:"specialization,omitempty"`
	CreatedBy      string          `bson:"createdBy,omitempty"`
}

// SandboxLifecycle tracks set-once lifecycle timestamps.
type SandboxLifecycle struct {
	CreatedAt     time.Time  `bson:"createdAt"`
	PausedAt      *time.Time `bson:"pausedAt,omitempty"`
	ResumedAt     *time.Time `bson:"resumedAt,omitempty"`
	KilledAt      *time.Time `bson:"killedAt,omitempty"`
	LastHeartbeat time.Time  `bson:"lastHeartbeat"`
}

// SandboxResources records the resource grant for the shared sandbox.
type SandboxResources struct {
	CPUCount  int   `bson:"cpuCount"`
	MemoryMB  int   `bson:"memoryMB"`
	TimeoutMs int64 `bson:"timeoutMs"`
}

// SandboxCosts accumulates a rough running cost estimate.
type SandboxCosts struct {
	EstimatedCost  float64 `bson:"estimatedCost"`
	RuntimeSeconds int64   `bson:"runtimeSeconds"`
}

// SandboxRecord is one row of the sandbox-tracking collection: one per
// (sandboxId, agentId) pair, all sharing a sandboxId while the shared
// sandbox is alive.
type SandboxRecord struct {
	SandboxID string              `bson:"sandboxId"`
	AgentID   string              `bson:"agentId"`
	Status    SandboxRecordStatus `bson:"status"`
	Metadata  SandboxMetadata     `bson:"metadata"`
	Lifecycle SandboxLifecycle    `bson:"lifecycle"`
	Resources SandboxResources    `bson:"resources"`
	Costs     SandboxCosts        `bson:"costs"`
}
