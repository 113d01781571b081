package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/squadlite/squadlite/internal/common/errors"
	"github.com/squadlite/squadlite/internal/store"
)

func taskToResponse(t *store.Task) TaskResponse {
	return TaskResponse{
		TaskID:       t.TaskID,
		ParentTaskID: t.ParentTaskID,
		AssignedTo:   t.AssignedTo,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Result:       t.Result,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// listTasks handles GET /api/tasks.
func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.store.ListAllTasks(c.Request.Context())
	if err != nil {
		c.Error(errors.InternalError("failed to list tasks", err))
		return
	}
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

// getTask handles GET /api/tasks/:id.
func (s *Server) getTask(c *gin.Context) {
	taskID := c.Param("id")
	task, err := s.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.Error(errors.NotFound("task", taskID))
		return
	}
	c.JSON(http.StatusOK, taskToResponse(task))
}

func messageToResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		MessageID: m.MessageID,
		FromAgent: m.FromAgent,
		ToAgent:   m.ToAgent,
		Content:   m.Content,
		Type:      string(m.Type),
		ThreadID:  m.ThreadID,
		Priority:  string(m.Priority),
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

// listMessages handles GET /api/messages?limit=N.
func (s *Server) listMessages(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.store.ListRecentMessages(c.Request.Context(), limit)
	if err != nil {
		c.Error(errors.InternalError("failed to list messages", err))
		return
	}
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageToResponse(m))
	}
	c.JSON(http.StatusOK, out)
}
