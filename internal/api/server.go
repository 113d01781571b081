// Package api implements the control plane's REST and WebSocket surface:
// agent/task/sandbox/message CRUD plus a firehose event feed, fronted by
// gin.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/control"
	"github.com/squadlite/squadlite/internal/events/bus"
	"github.com/squadlite/squadlite/internal/sandbox"
	"github.com/squadlite/squadlite/internal/store"
)

// buildVersion is stamped by the release pipeline; it stays "dev" in
// locally built binaries.
var buildVersion = "dev"

// Server wires the REST/WebSocket handlers to the coordination plane.
type Server struct {
	cfg      config.ServerConfig
	store    *store.Store
	sandbox  *sandbox.Orchestrator
	launcher *control.Launcher
	bus      bus.EventBus
	hub      *Hub
	logger   *logger.Logger
	httpSrv  *http.Server
}

// NewServer builds the control plane's HTTP server. Call Start to begin
// listening and Run the hub's event loop.
func NewServer(cfg config.ServerConfig, st *store.Store, sb *sandbox.Orchestrator, launcher *control.Launcher, eb bus.EventBus, log *logger.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		sandbox:  sb,
		launcher: launcher,
		bus:      eb,
		hub:      NewHub(log),
		logger:   log.WithFields(zap.String("component", "api")),
	}

	router := gin.New()
	router.Use(Recovery(s.logger), RequestLogger(s.logger), CORS(), RateLimit(100), ErrorHandler(s.logger))
	s.routes(router)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.serveWS)

	agents := r.Group("/api/agents")
	{
		agents.GET("", s.listAgents)
		agents.POST("", s.createAgent)
		agents.GET("/:id/status", s.getAgentStatus)
		agents.POST("/:id/task", s.submitTask)
		agents.DELETE("/:id", s.killAgent)
		agents.POST("/:id/restart", s.restartAgent)
	}

	sandboxes := r.Group("/api/sandboxes")
	{
		sandboxes.GET("", s.listSandboxes)
		sandboxes.GET("/:id", s.getSandbox)
		sandboxes.POST("/:id/pause", s.pauseSandbox)
		sandboxes.POST("/:id/resume", s.resumeSandbox)
		sandboxes.DELETE("/:id", s.deleteSandbox)
	}
	r.DELETE("/api/sandbox", s.deleteSharedSandbox)
	r.GET("/api/sandbox/status", s.sandboxStatus)

	tasks := r.Group("/api/tasks")
	{
		tasks.GET("", s.listTasks)
		tasks.GET("/:id", s.getTask)
	}

	r.GET("/api/messages", s.listMessages)
}

// Start subscribes the hub to the event bus, runs its event loop, and
// begins serving HTTP. It returns once the listener is bound; Serve errors
// after that point are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	if err := s.hub.SubscribeToBus(s.bus); err != nil {
		return fmt.Errorf("api: subscribe hub to event bus: %w", err)
	}
	go s.hub.Run(ctx)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server exited", zap.Error(err))
		}
	}()
	s.logger.Info("control plane listening", zap.String("addr", s.httpSrv.Addr))
	return nil
}

func (s *Server) publish(ctx context.Context, subject, source string, data map[string]interface{}) {
	if err := s.bus.Publish(ctx, subject, bus.NewEvent(subject, source, data)); err != nil {
		s.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
