// Package eventbus is the one-way stream from Core engines to the shell
// (spec.md §4.1). It is a simple fan-out broadcaster: every engine Publishes
// common.Event values; the shell (or, in this repo, cmd/commscore) Subscribes
// once and drains the channel.
//
// The bus is assumed infallible from the Core's perspective (spec.md §5):
// a slow subscriber gets a bounded buffer; when that buffer is full, Publish
// skips the event for that subscriber (which stays subscribed) rather than
// blocking the publisher.
package eventbus

import (
	"sync"

	"github.com/vienkmt/commscore/common"
)

const subscriberBuffer = 256

// Bus fans a single publish out to every current subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan common.Event
	nextID      int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]chan common.Event)}
}

// Subscribe registers a new receive channel and returns it along with an
// unsubscribe function. Ordering is per-topic-per-endpoint only
// (spec.md §4.1): the bus itself never reorders a subscriber's deliveries.
func (b *Bus) Subscribe() (<-chan common.Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan common.Event, subscriberBuffer)
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers an event to every current subscriber. A subscriber whose
// buffer is full is skipped for this event rather than blocking the caller.
func (b *Bus) Publish(event common.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
