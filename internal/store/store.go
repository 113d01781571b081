package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/logger"
)

const (
	collAgents      = "agents"
	collMessages    = "messages"
	collCheckpoints = "checkpoints"
	collTasks       = "tasks"
	collSandboxes   = "sandbox_tracking"
)

// Store is the process-wide singleton handle onto the MongoDB coordination
// plane. A single *Store is shared by every component: message bus,
// checkpoint store, task store, agent registry, and sandbox tracking.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logger.Logger

	agents      *mongo.Collection
	messages    *mongo.Collection
	checkpoints *mongo.Collection
	tasks       *mongo.Collection
	sandboxes   *mongo.Collection
}

// Connect dials MongoDB, selects the database, and idempotently ensures
// every index required by §3 exists. It must be called once at process
// start; the returned *Store is safe for concurrent use by every
// goroutine in the control plane.
func Connect(ctx context.Context, uri, database string, log *logger.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:      client,
		db:          db,
		logger:      log.WithFields(zap.String("component", "store")),
		agents:      db.Collection(collAgents),
		messages:    db.Collection(collMessages),
		checkpoints: db.Collection(collCheckpoints),
		tasks:       db.Collection(collTasks),
		sandboxes:   db.Collection(collSandboxes),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("store: ensure indexes: %w", err)
	}

	s.logger.Info("connected to mongodb", zap.String("database", database))
	return s, nil
}

// Close disconnects the underlying MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the underlying *mongo.Database for components (the
// change-stream watchers) that need raw Watch() access beyond this
// package's operations.
func (s *Store) Database() *mongo.Database {
	return s.db
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	agentIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "agentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastHeartbeat", Value: 1}}},
	}
	messageIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "messageId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "toAgent", Value: 1}, {Key: "readAt", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "threadId", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
	checkpointIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "checkpointId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	taskIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "status", Value: 1}}},
	}
	sandboxIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sandboxId", Value: 1}, {Key: "agentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lifecycle.lastHeartbeat", Value: 1}}},
	}

	indexSets := []struct {
		coll *mongo.Collection
		idx  []mongo.IndexModel
	}{
		{s.agents, agentIdx},
		{s.messages, messageIdx},
		{s.checkpoints, checkpointIdx},
		{s.tasks, taskIdx},
		{s.sandboxes, sandboxIdx},
	}

	for _, set := range indexSets {
		if _, err := set.coll.Indexes().CreateMany(ctx, set.idx); err != nil {
			return err
		}
	}
	return nil
}
