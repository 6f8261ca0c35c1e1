// Package eventbus — in-process synchronous observer list.
// Used by the settings store to notify the model registries and the chain
// orchestrator after a settings mutation.
//
// Design:
//   - Subscribers are plain callbacks invoked inline from Publish, in
//     registration order. A rebuild triggered by a settings change therefore
//     completes before the publisher returns — there is no window where a
//     stale chain can answer the next message.
//   - Subscribe returns an unsubscribe func; no channels, no buffering.
//   - Subscribers must not call Publish re-entrantly on the same topic.
package eventbus

import (
	"sort"
	"sync"
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// Handler receives every event published on a subscribed topic.
type Handler func(Event)

// Bus is a synchronous in-memory topic → observer-list registry.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers fn for topic and returns the unsubscribe func.
// The returned func is idempotent.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.next
	b.next++
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish invokes every handler subscribed to topic, synchronously, in the
// caller's goroutine. The subscriber snapshot is taken under the lock so a
// handler may unsubscribe itself without deadlocking.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	ids := make([]int, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	// Map iteration order is random; deliver in subscription order so
	// registry rebuilds always run before orchestrator rebuilds.
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(evt)
	}
}
