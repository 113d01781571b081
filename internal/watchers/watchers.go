// Package watchers drives the reactive half of the control plane: three
// MongoDB change streams (tasks, messages, checkpoints) turn writes other
// processes make into control-plane actions and fan-out events,
// reconnecting with backoff and filtering by operation type rather than
// polling.
package watchers

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/events/bus"
	"github.com/squadlite/squadlite/internal/store"
)

// Starter launches one agent's process and reports whether one is already
// live; satisfied by *control.Launcher.
type Starter interface {
	Run(ctx context.Context, agentID string)
	IsAgentRunning(agentID string) bool
}

const (
	initialBackoff    = 2 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2.0
)

// Watchers owns the three change streams that drive the reactive control
// plane: watching task assignment to launch specialists, and watching
// message/checkpoint inserts to fan them out as events.
type Watchers struct {
	store    *store.Store
	launcher Starter
	bus      bus.EventBus
	logger   *logger.Logger

	mu      sync.Mutex
	started map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the watcher set. Nothing is started until Start is called.
func New(st *store.Store, launcher Starter, eb bus.EventBus, log *logger.Logger) *Watchers {
	return &Watchers{
		store:    st,
		launcher: launcher,
		bus:      eb,
		logger:   log.WithFields(zap.String("component", "watchers")),
		started:  make(map[string]bool),
	}
}

// Start launches the three change-stream watchers as background
// goroutines and returns without waiting for any of them to connect.
func (w *Watchers) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(3)
	go w.runWatcher(ctx, "tasks", w.store.Database().Collection("tasks"), []string{"insert", "update", "replace"}, w.handleTaskChange)
	go w.runWatcher(ctx, "messages", w.store.Database().Collection("messages"), []string{"insert"}, w.handleMessageChange)
	go w.runWatcher(ctx, "checkpoints", w.store.Database().Collection("checkpoints"), []string{"insert"}, w.handleCheckpointChange)
}

// Stop cancels every watcher goroutine and waits for them to exit.
func (w *Watchers) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// runWatcher owns one change stream's reconnect-with-backoff loop.
func (w *Watchers) runWatcher(ctx context.Context, name string, coll *mongo.Collection, ops []string, handle func(context.Context, bson.Raw)) {
	defer w.wg.Done()
	log := w.logger.WithFields(zap.String("stream", name))

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: ops}}}}}},
	}
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
		stream, err := coll.Watch(ctx, pipeline, opts)
		if err != nil {
			log.Warn("failed to open change stream, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = initialBackoff
		log.Info("change stream opened")

		for stream.Next(ctx) {
			var event struct {
				FullDocument bson.Raw `bson:"fullDocument"`
			}
			if err := stream.Decode(&event); err != nil {
				log.Warn("failed to decode change event", zap.Error(err))
				continue
			}
			if event.FullDocument == nil {
				continue
			}
			handle(ctx, event.FullDocument)
		}

		streamErr := stream.Err()
		stream.Close(ctx)

		if ctx.Err() != nil {
			return
		}
		if streamErr != nil {
			log.Warn("change stream error, reconnecting", zap.Error(streamErr), zap.Duration("backoff", backoff))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(backoff time.Duration) time.Duration {
	next := time.Duration(float64(backoff) * backoffMultiplier)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// handleTaskChange launches the specialist owning a newly assigned task,
// guarding against a double start with an in-memory set. Directors' root
// tasks are launched directly by the REST layer and never reach this path
// since a director has no parentId.
func (w *Watchers) handleTaskChange(ctx context.Context, raw bson.Raw) {
	var task store.Task
	if err := bson.Unmarshal(raw, &task); err != nil {
		w.logger.Warn("failed to decode task change", zap.Error(err))
		return
	}
	if task.AssignedTo == nil {
		return
	}
	if task.Status != store.TaskStatusPending && task.Status != store.TaskStatusAssigned {
		return
	}

	agentID := *task.AssignedTo
	agent, err := w.store.GetAgent(ctx, agentID)
	if err != nil {
		w.logger.Warn("failed to load assignee agent", zap.String("agent_id", agentID), zap.Error(err))
		return
	}
	if agent.Type != store.AgentTypeSpecialist || agent.ParentID == nil {
		return
	}
	if w.launcher.IsAgentRunning(agentID) {
		return
	}

	if !w.claimStart(agentID) {
		return
	}

	if _, err := w.store.UpdateStatus(ctx, task.TaskID, store.TaskStatusInProgress, nil); err != nil {
		w.logger.Warn("failed to transition task to in_progress", zap.String("task_id", task.TaskID), zap.Error(err))
		w.releaseStart(agentID)
		return
	}
	w.publish(ctx, "task.status", "watcher-tasks", map[string]interface{}{"taskId": task.TaskID, "status": string(store.TaskStatusInProgress)})

	go func() {
		defer w.releaseStart(agentID)
		w.launcher.Run(context.Background(), agentID)
	}()
}

func (w *Watchers) handleMessageChange(ctx context.Context, raw bson.Raw) {
	var msg store.Message
	if err := bson.Unmarshal(raw, &msg); err != nil {
		w.logger.Warn("failed to decode message change", zap.Error(err))
		return
	}
	w.publish(ctx, "message.new", "watcher-messages", map[string]interface{}{
		"messageId":   msg.MessageID,
		"fromAgent":   msg.FromAgent,
		"toAgent":     msg.ToAgent,
		"messageType": string(msg.Type),
		"preview":     store.Preview(msg.Content),
	})
}

func (w *Watchers) handleCheckpointChange(ctx context.Context, raw bson.Raw) {
	var cp store.Checkpoint
	if err := bson.Unmarshal(raw, &cp); err != nil {
		w.logger.Warn("failed to decode checkpoint change", zap.Error(err))
		return
	}
	w.publish(ctx, "checkpoint.new", "watcher-checkpoints", map[string]interface{}{
		"checkpointId": cp.CheckpointID,
		"agentId":      cp.AgentID,
		"phase":        cp.ResumePointer.Phase,
		"timestamp":    cp.CreatedAt,
	})
}

func (w *Watchers) publish(ctx context.Context, subject, source string, data map[string]interface{}) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, subject, bus.NewEvent(subject, source, data)); err != nil {
		w.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// claimStart atomically marks agentID as starting, returning false if it
// was already marked — the double-start guard for a shared-sandbox
// specialist launch racing across multiple change events for the same
// assignment.
func (w *Watchers) claimStart(agentID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started[agentID] {
		return false
	}
	w.started[agentID] = true
	return true
}

func (w *Watchers) releaseStart(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.started, agentID)
}
