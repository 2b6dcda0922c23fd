package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestStubBus_PublishSubscribe(t *testing.T) {
	b := NewStubBus()
	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop(ctx)

	var mu sync.Mutex
	var received []Message
	handler := func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	}
	if err := b.Subscribe(ctx, TopicOpportunityDetected, "test-group", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i, key := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := b.Publish(ctx, TopicOpportunityDetected, key, []byte("payload")); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("expected 3 delivered messages, got %d", len(received))
	}
	for i, msg := range received {
		if msg.Topic != TopicOpportunityDetected {
			t.Errorf("message %d: expected topic %s, got %s", i, TopicOpportunityDetected, msg.Topic)
		}
	}
}

func TestStubBus_PublishBeforeStart(t *testing.T) {
	b := NewStubBus()
	err := b.Publish(context.Background(), TopicRiskStateUpdated, "key", nil)
	if !errors.Is(err, ErrBusNotStarted) {
		t.Fatalf("expected ErrBusNotStarted, got %v", err)
	}
}

func TestStubBus_IdempotentDelivery(t *testing.T) {
	b := NewStubBus()
	ctx := context.Background()
	b.Start(ctx)
	defer b.Stop(ctx)

	count := 0
	b.Subscribe(ctx, TopicPositionClosed, "g", func(ctx context.Context, msg Message) error {
		count++
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, TopicPositionClosed, "same-event-id", []byte("x")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if count != 1 {
		t.Fatalf("expected handler invoked once for repeated event id, got %d", count)
	}
}

func TestStubBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	b := NewStubBus()
	ctx := context.Background()
	b.Start(ctx)
	defer b.Stop(ctx)

	var calls int
	b.Subscribe(ctx, TopicMarketPrice, "g1", func(ctx context.Context, msg Message) error {
		calls++
		return errors.New("boom")
	})
	b.Subscribe(ctx, TopicMarketPrice, "g2", func(ctx context.Context, msg Message) error {
		calls++
		return nil
	})

	if err := b.Publish(ctx, TopicMarketPrice, "k1", []byte("x")); err != nil {
		t.Fatalf("publish should not surface handler errors: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both subscribers invoked despite one erroring, got %d calls", calls)
	}
}
