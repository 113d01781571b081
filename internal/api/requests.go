package api

import "time"

// CreateAgentRequest is the body of POST /api/agents.
type CreateAgentRequest struct {
	Type           string  `json:"type" binding:"required"`
	ParentID       *string `json:"parentId"`
	Specialization *string `json:"specialization"`
}

// SubmitTaskRequest is the body of POST /api/agents/:id/task.
type SubmitTaskRequest struct {
	Task string `json:"task" binding:"required"`
}

// AgentResponse is the JSON projection of a store.Agent.
type AgentResponse struct {
	AgentID        string     `json:"agentId"`
	Type           string     `json:"type"`
	Specialization *string    `json:"specialization,omitempty"`
	Status         string     `json:"status"`
	SandboxID      *string    `json:"sandboxId,omitempty"`
	SandboxStatus  string     `json:"sandboxStatus"`
	ParentID       *string    `json:"parentId,omitempty"`
	TaskID         *string    `json:"taskId,omitempty"`
	InputTokens    int64      `json:"totalInputTokens"`
	OutputTokens   int64      `json:"totalOutputTokens"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastHeartbeat  time.Time  `json:"lastHeartbeat"`
}

// TaskResponse is the JSON projection of a store.Task.
type TaskResponse struct {
	TaskID       string    `json:"taskId"`
	ParentTaskID *string   `json:"parentTaskId,omitempty"`
	AssignedTo   *string   `json:"assignedTo,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Result       *string   `json:"result,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MessageResponse is the JSON projection of a store.Message.
type MessageResponse struct {
	MessageID string     `json:"messageId"`
	FromAgent string     `json:"fromAgent"`
	ToAgent   string     `json:"toAgent"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	ThreadID  string     `json:"threadId"`
	Priority  string     `json:"priority"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// SandboxStatusResponse answers GET /api/sandbox/status.
type SandboxStatusResponse struct {
	SandboxID  string   `json:"sandboxId"`
	IsReady    bool     `json:"isReady"`
	AgentCount int      `json:"agentCount"`
	Agents     []string `json:"agents"`
}
