package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/api"
	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/control"
	"github.com/squadlite/squadlite/internal/events/bus"
	"github.com/squadlite/squadlite/internal/sandbox"
	"github.com/squadlite/squadlite/internal/store"
	"github.com/squadlite/squadlite/internal/watchers"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting control plane")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect to MongoDB
	st, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer st.Close(context.Background())
	log.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	// 5. Build the local event bus, optionally mirrored to NATS
	eventBus := bus.NewMemoryEventBus()
	if cfg.NATS.Enabled {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Error("failed to connect to NATS, continuing with local bus only", zap.Error(err))
		} else {
			defer natsBus.Close()
			if err := bus.MirrorToNATS(eventBus, natsBus, ">"); err != nil {
				log.Error("failed to mirror event bus to NATS", zap.Error(err))
			} else {
				log.Info("mirroring events to NATS", zap.String("url", cfg.NATS.URL))
			}
		}
	}

	// 6. Initialize the sandbox orchestrator
	sb, err := sandbox.NewOrchestrator(cfg.Sandbox, cfg.Docker, st, log)
	if err != nil {
		log.Fatal("failed to initialize sandbox orchestrator", zap.Error(err))
	}
	defer sb.Close()

	// 7. Build the host-side task completion launcher
	launcher := control.NewLauncher(st, sb, eventBus, log)

	// 8. Start the change-stream watchers
	w := watchers.New(st, launcher, eventBus, log)
	w.Start(ctx)
	log.Info("started change-stream watchers")

	// 9. Start the REST/WebSocket control plane
	srv := api.NewServer(cfg.Server, st, sb, launcher, eventBus, log)
	if err := srv.Start(ctx); err != nil {
		log.Fatal("failed to start control plane server", zap.Error(err))
	}

	// 10. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down control plane")

	// 11. Graceful shutdown
	cancel()
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("control plane server shutdown error", zap.Error(err))
	}

	log.Info("control plane stopped")
}
