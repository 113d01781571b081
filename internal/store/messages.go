package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/squadlite/squadlite/internal/common/errors"
)

// SendMessage inserts a new message, defaulting threadId to a fresh id and
// priority to "normal" when unset. The stored record is returned.
func (s *Store) SendMessage(ctx context.Context, fromAgent, toAgent, content string, msgType MessageType, threadID string, priority MessagePriority) (*Message, error) {
	if threadID == "" {
		threadID = uuid.New().String()
	}
	if priority == "" {
		priority = PriorityNormal
	}

	msg := &Message{
		MessageID: uuid.New().String(),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Content:   content,
		Type:      msgType,
		ThreadID:  threadID,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("store: send message: %w", err)
	}
	return msg, nil
}

var priorityRank = map[MessagePriority]int{
	PriorityHigh:   0,
	PriorityNormal: 1,
	PriorityLow:    2,
}

// GetInbox returns unread messages addressed to agentId ordered
// high-priority first, then ascending createdAt (FIFO within a priority
// tier). limit<=0 means unbounded.
func (s *Store) GetInbox(ctx context.Context, agentID string, limit int) ([]*Message, error) {
	filter := bson.D{{Key: "toAgent", Value: agentID}, {Key: "readAt", Value: nil}}
	// Mongo sorts createdAt ascending here; priority ordering is then
	// applied in-process, breaking ties within a priority tier by createdAt.
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cur, err := s.messages.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("store: get inbox: %w", err)
	}
	defer cur.Close(ctx)

	var all []*Message
	if err := cur.All(ctx, &all); err != nil {
		return nil, fmt.Errorf("store: decode inbox: %w", err)
	}

	sortInboxByPriorityThenFIFO(all)

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortInboxByPriorityThenFIFO(msgs []*Message) {
	// Stable insertion sort on priority rank, then createdAt ascending (FIFO)
	// within a priority tier; equal createdAt keeps the input order.
	for i := 1; i < len(msgs); i++ {
		j := i
		for j > 0 && (priorityRank[msgs[j].Priority] < priorityRank[msgs[j-1].Priority] ||
			(priorityRank[msgs[j].Priority] == priorityRank[msgs[j-1].Priority] &&
				msgs[j].CreatedAt.Before(msgs[j-1].CreatedAt))) {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
			j--
		}
	}
}

// CheckInboxPreviews returns the notification-injection projection: a
// 50-character content preview plus metadata, never the full content.
func (s *Store) CheckInboxPreviews(ctx context.Context, agentID string, limit int) ([]*MessagePreview, error) {
	if limit <= 0 {
		limit = 10
	}
	msgs, err := s.GetInbox(ctx, agentID, limit)
	if err != nil {
		return nil, err
	}

	previews := make([]*MessagePreview, 0, len(msgs))
	for _, m := range msgs {
		previews = append(previews, &MessagePreview{
			MessageID: m.MessageID,
			FromAgent: m.FromAgent,
			Type:      m.Type,
			Priority:  m.Priority,
			Preview:   Preview(m.Content),
			CreatedAt: m.CreatedAt,
		})
	}
	return previews, nil
}

// Preview renders the 50-character notification projection of a message
// body, the only form of content the checkInbox tool and the message:new
// event are allowed to carry.
func Preview(content string) string {
	return previewOf(content, 50)
}

// previewOf truncates content to maxLen runes, appending "..." iff
// truncation actually occurred.
func previewOf(content string, maxLen int) string {
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}

// ReadMessage fetches the full message and atomically marks it read on
// first read. A second call is idempotent: it returns the same readAt.
func (s *Store) ReadMessage(ctx context.Context, messageID string) (*Message, error) {
	now := time.Now().UTC()

	res := s.messages.FindOneAndUpdate(ctx,
		bson.D{{Key: "messageId", Value: messageID}, {Key: "readAt", Value: nil}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "readAt", Value: now}}}},
	)

	var msg Message
	if err := res.Decode(&msg); err != nil {
		if err == mongo.ErrNoDocuments {
			// Either already read or unknown; fetch to disambiguate.
			if err := s.messages.FindOne(ctx, bson.D{{Key: "messageId", Value: messageID}}).Decode(&msg); err != nil {
				return nil, errors.NotFound("message", messageID)
			}
			return &msg, nil
		}
		return nil, fmt.Errorf("store: read message: %w", err)
	}
	msg.ReadAt = &now
	return &msg, nil
}

// ListRecentMessages returns the most recently sent messages across every
// agent, newest first, capped at limit. limit<=0 defaults to 50.
func (s *Store) ListRecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))

	cur, err := s.messages.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("store: list recent messages: %w", err)
	}
	defer cur.Close(ctx)

	var msgs []*Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("store: decode recent messages: %w", err)
	}
	return msgs, nil
}

// GetThread returns every message sharing threadID, ascending by
// createdAt.
func (s *Store) GetThread(ctx context.Context, threadID string) ([]*Message, error) {
	cur, err := s.messages.Find(ctx,
		bson.D{{Key: "threadId", Value: threadID}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("store: get thread: %w", err)
	}
	defer cur.Close(ctx)

	var msgs []*Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("store: decode thread: %w", err)
	}
	return msgs, nil
}
