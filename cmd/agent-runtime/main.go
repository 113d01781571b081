// Command agent-runtime is the process launched by the sandbox
// orchestrator's docker exec session for a single agent. It is invoked as
//
//	squadlite-agent-runner --agentId <uuid> --agentType <director|specialist> [--specialization <spec>] [--parentId <uuid>]
//
// with the task body passed only through the AGENT_TASK environment
// variable, never as a command-line argument. This process does not read
// AGENT_TASK: it loads the agent's task from the store by the agent
// record's taskId. It runs the named agent's
// director or specialist loop to completion and exits non-zero on failure
// so the caller's exit-code inspection can tell success from error without
// parsing stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/llm"
	"github.com/squadlite/squadlite/internal/runtime"
	"github.com/squadlite/squadlite/internal/store"
)

func main() {
	agentID := flag.String("agentId", "", "agent id to run")
	agentType := flag.String("agentType", "", "director or specialist")
	specialization := flag.String("specialization", "", "specialist specialization")
	parentID := flag.String("parentId", "", "parent director id")
	flag.Parse()

	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "agent-runtime: --agentId is required")
		os.Exit(1)
	}
	if *agentType != string(store.AgentTypeDirector) && *agentType != string(store.AgentTypeSpecialist) {
		fmt.Fprintln(os.Stderr, "agent-runtime: --agentType must be director or specialist")
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent-runtime: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr: stdout is reserved for the sentinel-wrapped result
	// block the control plane parses after the process exits.
	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent-runtime: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.WithFields(zap.String("agent_id", *agentID))
	if *specialization != "" {
		log.Info("launched", zap.String("agent_type", *agentType), zap.String("specialization", *specialization))
	} else {
		log.Info("launched", zap.String("agent_type", *agentType))
	}
	if *parentID != "" {
		log = log.WithFields(zap.String("parent_id", *parentID))
	}

	ctx := context.Background()

	st, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	if err != nil {
		log.Error("failed to connect to store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close(ctx)

	runner := runtime.NewRunner(st, llm.NewClient(cfg.Anthropic), cfg.Runtime, log)

	onEvent := func(ev llm.Event) {
		if ev.Kind == llm.EventToolDone {
			log.Info("tool executed", zap.String("tool", ev.ToolName), zap.Bool("is_error", ev.ToolIsError))
		}
	}

	if err := runner.Run(ctx, *agentID, onEvent); err != nil {
		log.Error("agent run failed", zap.Error(err))
		os.Exit(1)
	}
}
