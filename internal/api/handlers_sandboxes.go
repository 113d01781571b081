package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/squadlite/squadlite/internal/common/errors"
)

// listSandboxes handles GET /api/sandboxes. The shared-sandbox model means
// there is at most one live sandbox; the list has zero or one entries.
func (s *Server) listSandboxes(c *gin.Context) {
	id := s.sandbox.SandboxID()
	if id == "" {
		c.JSON(http.StatusOK, []SandboxStatusResponse{})
		return
	}
	c.JSON(http.StatusOK, []SandboxStatusResponse{s.describeSandbox(c, id)})
}

// getSandbox handles GET /api/sandboxes/:id.
func (s *Server) getSandbox(c *gin.Context) {
	c.JSON(http.StatusOK, s.describeSandbox(c, c.Param("id")))
}

func (s *Server) describeSandbox(c *gin.Context, sandboxID string) SandboxStatusResponse {
	records, err := s.store.ListSandboxRecords(c.Request.Context(), sandboxID)
	if err != nil {
		s.logger.Warn("failed to list sandbox records")
		records = nil
	}
	agentIDs := make([]string, 0, len(records))
	for _, rec := range records {
		agentIDs = append(agentIDs, rec.AgentID)
	}
	return SandboxStatusResponse{
		SandboxID:  sandboxID,
		IsReady:    sandboxID == s.sandbox.SandboxID() && s.sandbox.IsReady(),
		AgentCount: len(agentIDs),
		Agents:     agentIDs,
	}
}

// pauseSandbox handles POST /api/sandboxes/:id/pause.
func (s *Server) pauseSandbox(c *gin.Context) {
	if c.Param("id") != s.sandbox.SandboxID() {
		c.Error(errors.SandboxNotFound("no such sandbox"))
		return
	}
	if err := s.sandbox.Pause(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	s.publish(c.Request.Context(), "sandbox.event", "api", map[string]interface{}{"sandboxId": c.Param("id"), "status": "paused"})
	c.JSON(http.StatusOK, gin.H{"sandboxId": c.Param("id"), "status": "paused"})
}

// resumeSandbox handles POST /api/sandboxes/:id/resume.
func (s *Server) resumeSandbox(c *gin.Context) {
	if c.Param("id") != s.sandbox.SandboxID() {
		c.Error(errors.SandboxNotFound("no such sandbox"))
		return
	}
	if err := s.sandbox.Resume(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	s.publish(c.Request.Context(), "sandbox.event", "api", map[string]interface{}{"sandboxId": c.Param("id"), "status": "active"})
	c.JSON(http.StatusOK, gin.H{"sandboxId": c.Param("id"), "status": "active"})
}

// deleteSandbox handles DELETE /api/sandboxes/:id.
func (s *Server) deleteSandbox(c *gin.Context) {
	if c.Param("id") != s.sandbox.SandboxID() {
		c.Error(errors.SandboxNotFound("no such sandbox"))
		return
	}
	s.killSharedSandbox(c)
}

// deleteSharedSandbox handles DELETE /api/sandbox: it kills the shared
// sandbox and every agent attached to it.
func (s *Server) deleteSharedSandbox(c *gin.Context) {
	s.killSharedSandbox(c)
}

func (s *Server) killSharedSandbox(c *gin.Context) {
	sandboxID := s.sandbox.SandboxID()
	if err := s.sandbox.KillSandbox(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	s.publish(c.Request.Context(), "sandbox.event", "api", map[string]interface{}{"sandboxId": sandboxID, "status": "killed"})
	c.JSON(http.StatusOK, gin.H{"sandboxId": sandboxID, "status": "killed"})
}

// sandboxStatus handles GET /api/sandbox/status.
func (s *Server) sandboxStatus(c *gin.Context) {
	id := s.sandbox.SandboxID()
	if id == "" {
		c.JSON(http.StatusOK, SandboxStatusResponse{IsReady: false, Agents: []string{}})
		return
	}
	c.JSON(http.StatusOK, s.describeSandbox(c, id))
}
