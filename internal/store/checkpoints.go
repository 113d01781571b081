package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateCheckpoint appends a new checkpoint; checkpoints are never updated.
func (s *Store) CreateCheckpoint(ctx context.Context, agentID string, summary CheckpointSummary, resume ResumePointer, tokensUsed int64) (*Checkpoint, error) {
	cp := &Checkpoint{
		CheckpointID:  uuid.New().String(),
		AgentID:       agentID,
		Summary:       summary,
		ResumePointer: resume,
		TokensUsed:    tokensUsed,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.checkpoints.InsertOne(ctx, cp); err != nil {
		return nil, fmt.Errorf("store: create checkpoint: %w", err)
	}
	return cp, nil
}

// GetLatestCheckpoint returns the checkpoint with the strictly greatest
// createdAt for agentID, or nil if the agent has none.
func (s *Store) GetLatestCheckpoint(ctx context.Context, agentID string) (*Checkpoint, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var cp Checkpoint
	err := s.checkpoints.FindOne(ctx, bson.D{{Key: "agentId", Value: agentID}}, opts).Decode(&cp)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get latest checkpoint: %w", err)
	}
	return &cp, nil
}

// BuildResumeContext renders the agent's latest checkpoint into the
// human-readable text block injected verbatim into the next run's system
// prompt. Returns an empty string if the agent has no checkpoints.
func (s *Store) BuildResumeContext(ctx context.Context, agentID string) (string, error) {
	cp, err := s.GetLatestCheckpoint(ctx, agentID)
	if err != nil {
		return "", err
	}
	if cp == nil {
		return "", nil
	}
	return renderResumeContext(cp), nil
}

// renderResumeContext renders a single checkpoint into the human-readable
// text block injected verbatim into the next run's system prompt. Split out
// from BuildResumeContext so the rendering itself can be exercised without a
// database round trip.
func renderResumeContext(cp *Checkpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", cp.Summary.Goal)

	b.WriteString("Completed:\n")
	for _, item := range cp.Summary.Completed {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	b.WriteString("Pending:\n")
	for _, item := range cp.Summary.Pending {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	b.WriteString("Decisions:\n")
	for _, item := range cp.Summary.Decisions {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	fmt.Fprintf(&b, "Next action: %s\n", cp.ResumePointer.NextAction)
	fmt.Fprintf(&b, "Phase: %s\n", cp.ResumePointer.Phase)
	if cp.ResumePointer.CurrentContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", cp.ResumePointer.CurrentContext)
	}

	return b.String()
}
