package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fundingarb/core/internal/metrics"
)

// StubBus is an in-process, in-memory EventBus. It is the default
// transport for tests and single-instance deployments, and the fallback
// when no NATS URL is configured — mirroring the teacher's
// internal/stream.StubBus.
type StubBus struct {
	mu          sync.RWMutex
	started     bool
	subscribers map[string][]Handler
	seen        map[string]map[string]bool // topic -> eventID -> delivered
	metrics     *metrics.Registry
}

// SetMetrics attaches the shared Prometheus registry.
func (s *StubBus) SetMetrics(m *metrics.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// NewStubBus constructs a ready-to-Start in-memory bus.
func NewStubBus() *StubBus {
	return &StubBus{
		subscribers: make(map[string][]Handler),
		seen:        make(map[string]map[string]bool),
	}
}

func (s *StubBus) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	log.Info().Msg("stub event bus started")
	return nil
}

func (s *StubBus) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *StubBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[topic] = append(s.subscribers[topic], handler)
	return nil
}

// Publish delivers synchronously to every subscriber of topic, skipping
// any (topic, eventID) pair already delivered. The key parameter doubles
// as the idempotency key when no explicit event ID is embedded in the
// payload, matching how the teacher's stub bus stamps a generated message
// ID when the caller has not supplied one.
func (s *StubBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrBusNotStarted
	}
	eventID := key
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%d", topic, time.Now().UnixNano())
	}
	if s.seen[topic] == nil {
		s.seen[topic] = make(map[string]bool)
	}
	if s.seen[topic][eventID] {
		s.mu.Unlock()
		return nil // already delivered once; idempotent no-op
	}
	s.seen[topic][eventID] = true
	handlers := append([]Handler(nil), s.subscribers[topic]...)
	m := s.metrics
	s.mu.Unlock()

	if m != nil {
		m.EventsPublished.WithLabelValues(topic).Inc()
	}

	msg := Message{EventID: eventID, Topic: topic, Key: key, Payload: payload, Timestamp: time.Now().UTC()}
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("bus handler returned error")
			if m != nil {
				m.HandlerErrors.WithLabelValues(topic, "").Inc()
			}
		}
	}
	return nil
}
