package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/events/bus"
)

func newTestClient(h *Hub) *wsClient {
	return &wsClient{id: "test-client", send: make(chan []byte, 8), hub: h, logger: logger.NewNop()}
}

func TestHubBroadcastDeliversToRegisteredClient(t *testing.T) {
	h := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient(h)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	h.Broadcast([]byte(`{"type":"agent.created"}`))

	select {
	case msg := <-c.send:
		if string(msg) != `{"type":"agent.created"}` {
			t.Errorf("client received %q, want the broadcast payload", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("registered client never received the broadcast payload")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient(h)
	h.register <- c
	time.Sleep(10 * time.Millisecond)
	if h.clientCount() != 1 {
		t.Fatalf("clientCount = %d, want 1 after register", h.clientCount())
	}

	h.unregister <- c
	time.Sleep(10 * time.Millisecond)

	if h.clientCount() != 0 {
		t.Errorf("clientCount = %d, want 0 after unregister", h.clientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("client's send channel should be closed after unregister")
	}
}

func TestHubShutdownClosesAllClientChannels(t *testing.T) {
	h := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c1 := newTestClient(h)
	c2 := newTestClient(h)
	h.register <- c1
	h.register <- c2
	time.Sleep(10 * time.Millisecond)

	cancel()
	time.Sleep(10 * time.Millisecond)

	for _, c := range []*wsClient{c1, c2} {
		if _, ok := <-c.send; ok {
			t.Error("client send channel should be closed after context cancellation")
		}
	}
}

func TestHubSubscribeToBusForwardsEventsAsEnvelopes(t *testing.T) {
	h := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient(h)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	eb := bus.NewMemoryEventBus()
	if err := h.SubscribeToBus(eb); err != nil {
		t.Fatalf("SubscribeToBus failed: %v", err)
	}

	eb.Publish(ctx, "task.status", bus.NewEvent("task.status", "test", map[string]interface{}{"taskId": "t1"}))

	select {
	case raw := <-c.send:
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		if env.Type != "task:status" {
			t.Errorf("envelope type = %q, want task:status", env.Type)
		}
		if env.Data["taskId"] != "t1" {
			t.Errorf("envelope data[taskId] = %v, want t1", env.Data["taskId"])
		}
	case <-time.After(time.Second):
		t.Fatal("client never received the bus-forwarded envelope")
	}
}

func TestMarshalEnvelopeFieldNames(t *testing.T) {
	event := bus.NewEvent("agent.created", "test", map[string]interface{}{"agentId": "a1"})
	raw, err := marshalEnvelope(event)
	if err != nil {
		t.Fatalf("marshalEnvelope failed: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"type", "data", "timestamp"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("marshaled envelope missing expected JSON field %q", key)
		}
	}
	if generic["type"] != "agent:created" {
		t.Errorf("envelope type = %v, want the dotted bus subject rewritten as agent:created", generic["type"])
	}
}
