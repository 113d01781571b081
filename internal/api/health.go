package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth answers GET /health with liveness status, the current
// server time, and the build version stamped into the binary.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   buildVersion,
	})
}
