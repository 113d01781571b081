package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/config"
	"github.com/squadlite/squadlite/internal/common/logger"
)

// NATSEventBus mirrors published events onto a NATS subject space so that
// additional WebSocket front doors (separate processes subscribing to the
// same control plane's event stream) can observe the same traffic as the
// in-process MemoryEventBus. It implements the same EventBus interface so
// callers never need to know which transport backs them.
type NATSEventBus struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// NewNATSEventBus connects to the configured NATS server. Returns an error
// if cfg.URL is empty or the connection cannot be established.
func NewNATSEventBus(cfg config.NATSConfig, log *logger.Logger) (*NATSEventBus, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bus: nats url not configured")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to nats: %w", err)
	}

	return &NATSEventBus{
		conn:   conn,
		logger: log.WithFields(zap.String("component", "nats-event-bus")),
	}, nil
}

func (b *NATSEventBus) Publish(_ context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	return b.conn.Publish(subject, data)
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (b *NATSEventBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn("failed to decode event", zap.Error(err), zap.String("subject", subject))
			return
		}
		handler(&event)
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSEventBus) QueueSubscribe(subject, queue string, handler Handler) (Subscription, error) {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn("failed to decode event", zap.Error(err), zap.String("subject", subject))
			return
		}
		handler(&event)
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSEventBus) Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("bus: marshal event: %w", err)
	}

	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}

	var reply Event
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("bus: decode reply: %w", err)
	}
	return &reply, nil
}

func (b *NATSEventBus) Close() error {
	b.conn.Close()
	return nil
}

func (b *NATSEventBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// MirrorToNATS mirrors every publish on a MemoryEventBus that matches one
// of the given subject patterns onto the given NATSEventBus, used when the control plane runs with both transports
// active so external listeners see the same events WebSocket clients do.
func MirrorToNATS(local *MemoryEventBus, remote *NATSEventBus, subjects ...string) error {
	for _, subject := range subjects {
		s := subject
		if _, err := local.Subscribe(s, func(event *Event) {
			_ = remote.Publish(context.Background(), s, event)
		}); err != nil {
			return err
		}
	}
	return nil
}
