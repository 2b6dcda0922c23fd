package bus

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/fundingarb/core/internal/metrics"
)

// NATSBus implements EventBus on top of a NATS core pub/sub connection.
// This is the production transport named in SPEC_FULL.md §B: the teacher
// ships Kafka/Pulsar backends for the same EventBus interface shape, NATS
// is wired here as the lighter-weight transport favored for the core's
// at-least-once, best-effort-ordered-per-publisher delivery model.
type NATSBus struct {
	url string

	mu      sync.Mutex
	conn    *nats.Conn
	subs    []*nats.Subscription
	metrics *metrics.Registry
}

// SetMetrics attaches the shared Prometheus registry.
func (n *NATSBus) SetMetrics(m *metrics.Registry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics = m
}

// NewNATSBus constructs a bus bound to the given NATS server URL. The
// connection is established lazily in Start so construction never blocks
// or fails on network state.
func NewNATSBus(url string) *NATSBus {
	return &NATSBus{url: url}
}

func (n *NATSBus) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return nil
	}
	conn, err := nats.Connect(n.url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats bus disconnected")
		}),
	)
	if err != nil {
		return err
	}
	n.conn = conn
	log.Info().Str("url", n.url).Msg("nats event bus connected")
	return nil
}

func (n *NATSBus) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		_ = s.Unsubscribe()
	}
	n.subs = nil
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	return nil
}

func (n *NATSBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	n.mu.Lock()
	conn := n.conn
	m := n.metrics
	n.mu.Unlock()
	if conn == nil {
		return ErrBusNotStarted
	}
	msg := nats.NewMsg(topic)
	msg.Data = payload
	msg.Header.Set("key", key)
	if err := conn.PublishMsg(msg); err != nil {
		return err
	}
	if m != nil {
		m.EventsPublished.WithLabelValues(topic).Inc()
	}
	return nil
}

func (n *NATSBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return ErrBusNotStarted
	}
	n.mu.Lock()
	reg := n.metrics
	n.mu.Unlock()

	sub, err := conn.QueueSubscribe(topic, group, func(m *nats.Msg) {
		msg := Message{
			EventID: m.Header.Get("key"),
			Topic:   m.Subject,
			Key:     m.Header.Get("key"),
			Payload: m.Data,
		}
		if err := handler(ctx, msg); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("nats handler returned error")
			if reg != nil {
				reg.HandlerErrors.WithLabelValues(topic, group).Inc()
			}
		}
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return nil
}
