package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryEventBusPublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus()
	received := make(chan *Event, 1)

	sub, err := b.Subscribe("agent.created", func(e *Event) { received <- e })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(context.Background(), "agent.created", NewEvent("agent.created", "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.Type != "agent.created" {
			t.Errorf("event type = %q, want agent.created", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestMemoryEventBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryEventBus()
	received := make(chan *Event, 1)
	sub, _ := b.Subscribe("task.status", func(e *Event) { received <- e })
	sub.Unsubscribe()

	b.Publish(context.Background(), "task.status", NewEvent("task.status", "test", nil))

	select {
	case <-received:
		t.Fatal("unsubscribed handler should not receive further events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryEventBusWildcardStarMatchesOneToken(t *testing.T) {
	b := NewMemoryEventBus()
	received := make(chan *Event, 1)
	b.Subscribe("task.*", func(e *Event) { received <- e })

	b.Publish(context.Background(), "task.status", NewEvent("task.status", "test", nil))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("\"task.*\" should match \"task.status\"")
	}
}

func TestMemoryEventBusWildcardStarDoesNotMatchExtraToken(t *testing.T) {
	b := NewMemoryEventBus()
	received := make(chan *Event, 1)
	b.Subscribe("task.*", func(e *Event) { received <- e })

	b.Publish(context.Background(), "task.status.extra", NewEvent("task.status.extra", "test", nil))

	select {
	case <-received:
		t.Fatal("\"task.*\" should not match \"task.status.extra\" (single-token wildcard)")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryEventBusGreaterThanMatchesEverythingAfter(t *testing.T) {
	b := NewMemoryEventBus()
	received := make(chan *Event, 1)
	b.Subscribe(">", func(e *Event) { received <- e })

	b.Publish(context.Background(), "agent.output.chunk", NewEvent("agent.output.chunk", "test", nil))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("\">\" subscription should receive every published subject")
	}
}

func TestMemoryEventBusRequestReply(t *testing.T) {
	b := NewMemoryEventBus()
	b.Subscribe("ping", func(e *Event) {
		reply, ok := e.Data["replyTo"].(string)
		if !ok {
			return
		}
		b.Publish(context.Background(), reply, NewEvent("pong", "responder", nil))
	})

	reply, err := b.Request(context.Background(), "ping", NewEvent("ping", "requester", map[string]interface{}{}), time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if reply.Type != "pong" {
		t.Errorf("reply type = %q, want pong", reply.Type)
	}
}

func TestMemoryEventBusRequestTimesOut(t *testing.T) {
	b := NewMemoryEventBus()
	_, err := b.Request(context.Background(), "nobody.listens", NewEvent("ping", "requester", nil), 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error when nothing replies")
	}
}

func TestMemoryEventBusConcurrentPublishIsSafe(t *testing.T) {
	b := NewMemoryEventBus()
	var count int
	var mu sync.Mutex
	b.Subscribe(">", func(e *Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(context.Background(), "x.y", NewEvent("x.y", "test", nil))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Errorf("expected 50 delivered events, got %d", count)
	}
}
