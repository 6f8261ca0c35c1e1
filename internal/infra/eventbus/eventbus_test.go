package eventbus

import "testing"

func TestPublish_DeliversSynchronouslyInOrder(t *testing.T) {
	t.Parallel()

	bus := New()
	var got []string

	bus.Subscribe("settings.changed", func(e Event) {
		got = append(got, "first:"+e.Payload.(string))
	})
	bus.Subscribe("settings.changed", func(e Event) {
		got = append(got, "second:"+e.Payload.(string))
	})

	bus.Publish("settings.changed", "v1")

	// Delivery is inline — by the time Publish returns, both ran.
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0] != "first:v1" || got[1] != "second:v1" {
		t.Fatalf("expected registration-order delivery, got %v", got)
	}
}

func TestPublish_UnknownTopicIsNoop(t *testing.T) {
	t.Parallel()

	bus := New()
	bus.Publish("nobody.listening", 42) // must not panic
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	t.Parallel()

	bus := New()
	calls := 0
	unsub := bus.Subscribe("t", func(Event) { calls++ })

	bus.Publish("t", nil)
	unsub()
	unsub() // idempotent
	bus.Publish("t", nil)

	if calls != 1 {
		t.Fatalf("expected exactly 1 delivery after unsubscribe, got %d", calls)
	}
}

func TestSubscribe_TopicsAreIsolated(t *testing.T) {
	t.Parallel()

	bus := New()
	var a, b int
	bus.Subscribe("a", func(Event) { a++ })
	bus.Subscribe("b", func(Event) { b++ })

	bus.Publish("a", nil)
	bus.Publish("a", nil)
	bus.Publish("b", nil)

	if a != 2 || b != 1 {
		t.Fatalf("expected a=2 b=1, got a=%d b=%d", a, b)
	}
}

func TestHandler_CanUnsubscribeItself(t *testing.T) {
	t.Parallel()

	bus := New()
	calls := 0
	var unsub func()
	unsub = bus.Subscribe("t", func(Event) {
		calls++
		unsub()
	})

	bus.Publish("t", nil)
	bus.Publish("t", nil)

	if calls != 1 {
		t.Fatalf("expected self-unsubscribe after first event, got %d calls", calls)
	}
}
