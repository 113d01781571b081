package api

import (
	"testing"
	"time"

	"github.com/squadlite/squadlite/internal/store"
)

func TestAgentToResponseWithSpecialization(t *testing.T) {
	spec := store.SpecializationWriter
	parentID := "agent-parent"
	sandboxID := "sandbox-1"
	taskID := "task-1"
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	heartbeat := createdAt.Add(5 * time.Minute)

	agent := &store.Agent{
		AgentID:        "agent-1",
		Type:           store.AgentTypeSpecialist,
		Specialization: &spec,
		Status:         store.AgentStatusWorking,
		SandboxID:      &sandboxID,
		SandboxStatus:  store.SandboxStatusActive,
		ParentID:       &parentID,
		TaskID:         &taskID,
		TokenUsage:     store.TokenUsage{TotalInputTokens: 100, TotalOutputTokens: 42},
		CreatedAt:      createdAt,
		LastHeartbeat:  heartbeat,
	}

	resp := agentToResponse(agent)

	if resp.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", resp.AgentID)
	}
	if resp.Type != "specialist" {
		t.Errorf("Type = %q, want specialist", resp.Type)
	}
	if resp.Specialization == nil || *resp.Specialization != "writer" {
		t.Errorf("Specialization = %v, want writer", resp.Specialization)
	}
	if resp.SandboxID == nil || *resp.SandboxID != sandboxID {
		t.Errorf("SandboxID = %v, want %s", resp.SandboxID, sandboxID)
	}
	if resp.ParentID == nil || *resp.ParentID != parentID {
		t.Errorf("ParentID = %v, want %s", resp.ParentID, parentID)
	}
	if resp.TaskID == nil || *resp.TaskID != taskID {
		t.Errorf("TaskID = %v, want %s", resp.TaskID, taskID)
	}
	if resp.InputTokens != 100 || resp.OutputTokens != 42 {
		t.Errorf("token usage = (%d, %d), want (100, 42)", resp.InputTokens, resp.OutputTokens)
	}
	if !resp.CreatedAt.Equal(createdAt) || !resp.LastHeartbeat.Equal(heartbeat) {
		t.Error("timestamps did not round-trip")
	}
}

func TestAgentToResponseDirectorHasNoSpecialization(t *testing.T) {
	agent := &store.Agent{
		AgentID:       "director-1",
		Type:          store.AgentTypeDirector,
		Status:        store.AgentStatusIdle,
		SandboxStatus: store.SandboxStatusNone,
		CreatedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}

	resp := agentToResponse(agent)

	if resp.Specialization != nil {
		t.Errorf("Specialization = %v, want nil for a director", resp.Specialization)
	}
	if resp.SandboxID != nil {
		t.Errorf("SandboxID = %v, want nil when the agent has no sandbox", resp.SandboxID)
	}
	if resp.ParentID != nil {
		t.Errorf("ParentID = %v, want nil for a root director", resp.ParentID)
	}
}
