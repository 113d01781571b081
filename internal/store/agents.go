package store

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/squadlite/squadlite/internal/common/errors"
)

// RegisterAgent creates a new agent record (director or specialist). A
// caller-supplied agentID of "" is replaced with a fresh uuid.
func (s *Store) RegisterAgent(ctx context.Context, agentID string, agentType AgentType, specialization *Specialization, parentID *string) (*Agent, error) {
	if agentID == "" {
		agentID = uuid.New().String()
	}
	now := time.Now().UTC()

	agent := &Agent{
		AgentID:        agentID,
		Type:           agentType,
		Specialization: specialization,
		Status:         AgentStatusIdle,
		SandboxStatus:  SandboxStatusNone,
		ParentID:       parentID,
		CreatedAt:      now,
		LastHeartbeat:  now,
	}

	if _, err := s.agents.InsertOne(ctx, agent); err != nil {
		return nil, fmt.Errorf("store: register agent: %w", err)
	}
	return agent, nil
}

// GetAgent fetches an agent record by id.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	err := s.agents.FindOne(ctx, bson.D{{Key: "agentId", Value: agentID}}).Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("agent", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent: %w", err)
	}
	return &agent, nil
}

// ListAgents returns every agent record, newest first.
func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	cur, err := s.agents.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer cur.Close(ctx)

	var agents []*Agent
	if err := cur.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("store: decode agents: %w", err)
	}
	return agents, nil
}

// ListAgentsByTypeStatus returns the subset of agents matching the given
// type (if non-empty) and status filters, used by the listAgents tool.
func (s *Store) ListAgentsByTypeStatus(ctx context.Context, agentType AgentType, statuses []AgentStatus) ([]*Agent, error) {
	filter := bson.D{}
	if agentType != "" {
		filter = append(filter, bson.E{Key: "type", Value: agentType})
	}
	if len(statuses) > 0 {
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: statuses}}})
	}

	cur, err := s.agents.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: list agents by type/status: %w", err)
	}
	defer cur.Close(ctx)

	var agents []*Agent
	if err := cur.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("store: decode agents: %w", err)
	}
	return agents, nil
}

// UpdateAgentStatus sets status (and optionally taskId), advancing
// lastHeartbeat.
func (s *Store) UpdateAgentStatus(ctx context.Context, agentID string, status AgentStatus, taskID *string) error {
	now := time.Now().UTC()
	setFields := bson.D{{Key: "status", Value: status}, {Key: "lastHeartbeat", Value: now}}
	if taskID != nil {
		setFields = append(setFields, bson.E{Key: "taskId", Value: *taskID})
	}

	_, err := s.agents.UpdateOne(ctx,
		bson.D{{Key: "agentId", Value: agentID}},
		bson.D{{Key: "$set", Value: setFields}},
	)
	if err != nil {
		return fmt.Errorf("store: update agent status: %w", err)
	}
	return nil
}

// UpdateAgentSandboxStatus sets sandboxId and sandboxStatus together, used
// by the sandbox orchestrator when registering or killing.
func (s *Store) UpdateAgentSandboxStatus(ctx context.Context, agentID string, sandboxID *string, status SandboxStatus) error {
	setFields := bson.D{{Key: "sandboxStatus", Value: status}}
	if sandboxID != nil {
		setFields = append(setFields, bson.E{Key: "sandboxId", Value: *sandboxID})
	}
	_, err := s.agents.UpdateOne(ctx,
		bson.D{{Key: "agentId", Value: agentID}},
		bson.D{{Key: "$set", Value: setFields}},
	)
	if err != nil {
		return fmt.Errorf("store: update agent sandbox status: %w", err)
	}
	return nil
}

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GetOrCreateSession returns the agent's existing durable sessionId, or
// mints one in the form "session-<epoch-ms>-<9 random base36 chars>" and
// persists it.
func (s *Store) GetOrCreateSession(ctx context.Context, agentID string) (string, error) {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	if agent.SessionID != nil && *agent.SessionID != "" {
		return *agent.SessionID, nil
	}

	sessionID := newSessionID()
	_, err = s.agents.UpdateOne(ctx,
		bson.D{{Key: "agentId", Value: agentID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "sessionId", Value: sessionID}}}},
	)
	if err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return sessionID, nil
}

func newSessionID() string {
	epochMs := time.Now().UTC().UnixMilli()
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = sessionIDAlphabet[rand.Intn(len(sessionIDAlphabet))]
	}
	return fmt.Sprintf("session-%d-%s", epochMs, suffix)
}

// AddTokens atomically increments the agent's cumulative token counters.
// It runs once per LLM call, so it also advances lastHeartbeat.
func (s *Store) AddTokens(ctx context.Context, agentID string, inputTokens, outputTokens int64) error {
	now := time.Now().UTC()
	_, err := s.agents.UpdateOne(ctx,
		bson.D{{Key: "agentId", Value: agentID}},
		bson.D{
			{Key: "$inc", Value: bson.D{
				{Key: "tokenUsage.totalInputTokens", Value: inputTokens},
				{Key: "tokenUsage.totalOutputTokens", Value: outputTokens},
			}},
			{Key: "$set", Value: bson.D{
				{Key: "tokenUsage.lastUpdated", Value: now},
				{Key: "lastHeartbeat", Value: now},
			}},
		},
	)
	if err != nil {
		return fmt.Errorf("store: add tokens: %w", err)
	}
	return nil
}
