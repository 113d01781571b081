package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/squadlite/squadlite/internal/common/errors"
	"github.com/squadlite/squadlite/internal/store"
)

func agentToResponse(a *store.Agent) AgentResponse {
	spec := (*string)(nil)
	if a.Specialization != nil {
		s := string(*a.Specialization)
		spec = &s
	}
	return AgentResponse{
		AgentID:        a.AgentID,
		Type:           string(a.Type),
		Specialization: spec,
		Status:         string(a.Status),
		SandboxID:      a.SandboxID,
		SandboxStatus:  string(a.SandboxStatus),
		ParentID:       a.ParentID,
		TaskID:         a.TaskID,
		InputTokens:    a.TokenUsage.TotalInputTokens,
		OutputTokens:   a.TokenUsage.TotalOutputTokens,
		CreatedAt:      a.CreatedAt,
		LastHeartbeat:  a.LastHeartbeat,
	}
}

// listAgents handles GET /api/agents.
func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.store.ListAgents(c.Request.Context())
	if err != nil {
		c.Error(errors.InternalError("failed to list agents", err))
		return
	}
	out := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentToResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

// createAgent handles POST /api/agents.
func (s *Server) createAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.BadRequest("invalid request body: " + err.Error()))
		return
	}
	if req.Type != string(store.AgentTypeDirector) && req.Type != string(store.AgentTypeSpecialist) {
		c.Error(errors.BadRequest("type must be director or specialist"))
		return
	}

	var spec *store.Specialization
	if req.Specialization != nil {
		s := store.Specialization(*req.Specialization)
		spec = &s
	}

	agent, err := s.store.RegisterAgent(c.Request.Context(), "", store.AgentType(req.Type), spec, req.ParentID)
	if err != nil {
		c.Error(errors.InternalError("failed to register agent", err))
		return
	}

	s.publish(c.Request.Context(), "agent.created", "api", map[string]interface{}{"agentId": agent.AgentID, "type": string(agent.Type)})
	c.JSON(http.StatusCreated, agentToResponse(agent))
}

// getAgentStatus handles GET /api/agents/:id/status.
func (s *Server) getAgentStatus(c *gin.Context) {
	agentID := c.Param("id")
	agent, err := s.store.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		c.Error(errors.NotFound("agent", agentID))
		return
	}
	c.JSON(http.StatusOK, agentToResponse(agent))
}

// submitTask handles POST /api/agents/:id/task: it creates and assigns the
// task, then asynchronously launches the agent's process. The response
// reports status "assigned" immediately; a background goroutine then moves
// the task to in_progress and runs the launcher.
func (s *Server) submitTask(c *gin.Context) {
	agentID := c.Param("id")
	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.BadRequest("invalid request body: " + err.Error()))
		return
	}

	agent, err := s.store.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		c.Error(errors.NotFound("agent", agentID))
		return
	}

	title := req.Task
	if len(title) > 80 {
		title = title[:80]
	}

	task, err := s.store.CreateTask(c.Request.Context(), title, req.Task, nil)
	if err != nil {
		c.Error(errors.InternalError("failed to create task", err))
		return
	}
	s.publish(c.Request.Context(), "task.created", "api", map[string]interface{}{"taskId": task.TaskID, "title": task.Title})
	if _, err := s.store.AssignTask(c.Request.Context(), task.TaskID, agent.AgentID); err != nil {
		c.Error(errors.InternalError("failed to assign task", err))
		return
	}
	s.publish(c.Request.Context(), "task.status", "api", map[string]interface{}{"taskId": task.TaskID, "status": string(store.TaskStatusAssigned)})

	go func(agentID, taskID string) {
		ctx := context.Background()
		if _, err := s.store.UpdateStatus(ctx, taskID, store.TaskStatusInProgress, nil); err != nil {
			s.logger.Warn("failed to transition submitted task to in_progress")
			return
		}
		s.launcher.Run(ctx, agentID)
	}(agent.AgentID, task.TaskID)

	c.JSON(http.StatusOK, gin.H{"taskId": task.TaskID, "status": string(store.TaskStatusAssigned), "agentId": agent.AgentID})
}

// killAgent handles DELETE /api/agents/:id: best-effort terminates the
// agent's process in the shared sandbox. The agent's in-flight task is
// left alone — a restarted agent resumes it from its latest checkpoint,
// and the launcher's failure path marks it failed if the killed process
// exits badly.
func (s *Server) killAgent(c *gin.Context) {
	agentID := c.Param("id")
	if _, err := s.store.GetAgent(c.Request.Context(), agentID); err != nil {
		c.Error(errors.NotFound("agent", agentID))
		return
	}

	if err := s.sandbox.Kill(c.Request.Context(), agentID); err != nil {
		s.logger.Warn("best-effort sandbox kill failed")
	}
	s.publish(c.Request.Context(), "agent.killed", "api", map[string]interface{}{"agentId": agentID})

	c.JSON(http.StatusOK, gin.H{"agentId": agentID, "status": "killed", "checkpointId": nil})
}

// restartAgent handles POST /api/agents/:id/restart: it resets the agent's
// logical status to idle while leaving its sandbox attachment untouched.
func (s *Server) restartAgent(c *gin.Context) {
	agentID := c.Param("id")
	if err := s.store.UpdateAgentStatus(c.Request.Context(), agentID, store.AgentStatusIdle, nil); err != nil {
		c.Error(errors.InternalError("failed to restart agent", err))
		return
	}
	agent, err := s.store.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		c.Error(errors.NotFound("agent", agentID))
		return
	}
	s.publish(c.Request.Context(), "agent.status", "api", map[string]interface{}{"agentId": agentID, "status": string(store.AgentStatusIdle)})
	c.JSON(http.StatusCreated, agentToResponse(agent))
}
