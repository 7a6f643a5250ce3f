package runs

import (
	"context"
	"testing"
	"time"
)

func TestBrokerFansOutToAllSubscribers(t *testing.T) {
	broker := NewBroker[int](4)
	defer broker.Shutdown()

	ctx := context.Background()
	first := broker.Subscribe(ctx)
	second := broker.Subscribe(ctx)
	if broker.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", broker.Subscribers())
	}

	broker.Publish(7)
	for name, ch := range map[string]<-chan int{"first": first, "second": second} {
		select {
		case v := <-ch:
			if v != 7 {
				t.Fatalf("%s received %d, want 7", name, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive the event", name)
		}
	}
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	broker := NewBroker[int](1)
	defer broker.Shutdown()

	ch := broker.Subscribe(context.Background())
	broker.Publish(1)
	broker.Publish(2) // buffer full, dropped

	select {
	case v := <-ch:
		if v != 1 {
			t.Fatalf("received %d, want 1", v)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the first event")
	}
	select {
	case v := <-ch:
		t.Fatalf("expected the second event dropped, received %d", v)
	default:
	}
}

func TestBrokerUnsubscribesOnContextCancel(t *testing.T) {
	broker := NewBroker[int](1)
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected a closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancel")
	}

	deadline := time.Now().Add(time.Second)
	for broker.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber was not removed, %d left", broker.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBrokerShutdown(t *testing.T) {
	broker := NewBroker[int](1)
	ch := broker.Subscribe(context.Background())

	broker.Shutdown()
	if _, open := <-ch; open {
		t.Fatal("expected subscriber channels closed on shutdown")
	}

	late := broker.Subscribe(context.Background())
	if _, open := <-late; open {
		t.Fatal("expected an already closed channel after shutdown")
	}

	broker.Publish(1) // no-op after shutdown
	broker.Shutdown() // idempotent
}
