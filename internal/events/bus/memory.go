package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryEventBus is an in-process EventBus using NATS-style subject
// wildcards ("*" for one token, ">" for the remaining tokens). It is the
// default transport: every control-plane instance runs one, regardless of
// whether a NATS mirror is also configured.
type MemoryEventBus struct {
	mu   sync.RWMutex
	subs map[string]*memorySubscription
}

type memorySubscription struct {
	id      string
	subject string
	handler Handler
	bus     *MemoryEventBus
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}

// NewMemoryEventBus constructs an empty in-process bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subs: make(map[string]*memorySubscription)}
}

func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	matched := make([]*memorySubscription, 0, len(b.subs))
	for _, s := range b.subs {
		if subjectMatches(s.subject, subject) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		s.handler(event)
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &memorySubscription{id: uuid.New().String(), subject: subject, handler: handler, bus: b}
	b.subs[sub.id] = sub
	return sub, nil
}

// QueueSubscribe behaves like Subscribe for the in-process bus: there is no
// second replica competing for delivery, so every queue member still
// receives every event. The NATS mirror is where true queue-group semantics
// across replicas apply.
func (b *MemoryEventBus) QueueSubscribe(subject, _ string, handler Handler) (Subscription, error) {
	return b.Subscribe(subject, handler)
}

func (b *MemoryEventBus) Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error) {
	replyCh := make(chan *Event, 1)
	replySubject := subject + ".reply." + uuid.New().String()

	sub, err := b.Subscribe(replySubject, func(e *Event) {
		select {
		case replyCh <- e:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if event.Data == nil {
		event.Data = map[string]interface{}{}
	}
	event.Data["replyTo"] = replySubject

	if err := b.Publish(ctx, subject, event); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("bus: request on %q timed out after %s", subject, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]*memorySubscription)
	return nil
}

func (b *MemoryEventBus) IsConnected() bool {
	return true
}

// subjectMatches reports whether a published subject satisfies a
// subscription pattern using NATS-style "*" and ">" wildcards.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, pt := range pTokens {
		if pt == ">" {
			return true
		}
		if i >= len(sTokens) {
			return false
		}
		if pt != "*" && pt != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}
