package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// UpsertSandboxRecord creates the (sandboxId, agentId) tracking row for an
// agent attached to the shared sandbox, or returns the existing row
// unchanged.
func (s *Store) UpsertSandboxRecord(ctx context.Context, sandboxID, agentID string, meta SandboxMetadata, resources SandboxResources) (*SandboxRecord, error) {
	now := time.Now().UTC()

	existing, err := s.GetSandboxRecord(ctx, sandboxID, agentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rec := &SandboxRecord{
		SandboxID: sandboxID,
		AgentID:   agentID,
		Status:    SandboxRecordCreating,
		Metadata:  meta,
		Lifecycle: SandboxLifecycle{CreatedAt: now, LastHeartbeat: now},
		Resources: resources,
	}
	if _, err := s.sandboxes.InsertOne(ctx, rec); err != nil {
		return nil, fmt.Errorf("store: upsert sandbox record: %w", err)
	}
	return rec, nil
}

// GetSandboxRecord fetches one (sandboxId, agentId) tracking row.
func (s *Store) GetSandboxRecord(ctx context.Context, sandboxID, agentID string) (*SandboxRecord, error) {
	var rec SandboxRecord
	err := s.sandboxes.FindOne(ctx,
		bson.D{{Key: "sandboxId", Value: sandboxID}, {Key: "agentId", Value: agentID}},
	).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get sandbox record: %w", err)
	}
	return &rec, nil
}

// ListSandboxRecords returns every tracking row for a sandbox.
func (s *Store) ListSandboxRecords(ctx context.Context, sandboxID string) ([]*SandboxRecord, error) {
	cur, err := s.sandboxes.Find(ctx, bson.D{{Key: "sandboxId", Value: sandboxID}})
	if err != nil {
		return nil, fmt.Errorf("store: list sandbox records: %w", err)
	}
	defer cur.Close(ctx)

	var recs []*SandboxRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("store: decode sandbox records: %w", err)
	}
	return recs, nil
}

// SetSandboxRecordStatusForAgent transitions a single (sandboxId, agentId)
// tracking row to status, stamping the matching set-once lifecycle
// timestamp. Used by Kill(agentId), which must not disturb the tracking
// rows of the other agents still sharing the sandbox.
func (s *Store) SetSandboxRecordStatusForAgent(ctx context.Context, sandboxID, agentID string, status SandboxRecordStatus) error {
	now := time.Now().UTC()
	setFields := bson.D{{Key: "status", Value: status}, {Key: "lifecycle.lastHeartbeat", Value: now}}

	switch status {
	case SandboxRecordPaused:
		setFields = append(setFields, bson.E{Key: "lifecycle.pausedAt", Value: now})
	case SandboxRecordActive:
		setFields = append(setFields, bson.E{Key: "lifecycle.resumedAt", Value: now})
	case SandboxRecordKilled:
		setFields = append(setFields, bson.E{Key: "lifecycle.killedAt", Value: now})
	}

	_, err := s.sandboxes.UpdateOne(ctx,
		bson.D{{Key: "sandboxId", Value: sandboxID}, {Key: "agentId", Value: agentID}},
		bson.D{{Key: "$set", Value: setFields}},
	)
	if err != nil {
		return fmt.Errorf("store: set sandbox record status for agent: %w", err)
	}
	return nil
}

// SetSandboxRecordStatus transitions every record for sandboxID to status,
// stamping the matching set-once lifecycle timestamp.
func (s *Store) SetSandboxRecordStatus(ctx context.Context, sandboxID string, status SandboxRecordStatus) error {
	now := time.Now().UTC()
	setFields := bson.D{{Key: "status", Value: status}, {Key: "lifecycle.lastHeartbeat", Value: now}}

	switch status {
	case SandboxRecordPaused:
		setFields = append(setFields, bson.E{Key: "lifecycle.pausedAt", Value: now})
	case SandboxRecordActive:
		setFields = append(setFields, bson.E{Key: "lifecycle.resumedAt", Value: now})
	case SandboxRecordKilled:
		setFields = append(setFields, bson.E{Key: "lifecycle.killedAt", Value: now})
	}

	_, err := s.sandboxes.UpdateMany(ctx,
		bson.D{{Key: "sandboxId", Value: sandboxID}},
		bson.D{{Key: "$set", Value: setFields}},
	)
	if err != nil {
		return fmt.Errorf("store: set sandbox record status: %w", err)
	}
	return nil
}
