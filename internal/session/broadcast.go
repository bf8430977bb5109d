package session

import (
	"sync"

	"github.com/quarryhq/quarry/internal/model"
)

// subscriberBuffer is each subscriber's channel capacity. A reader that
// falls further behind than this loses events rather than stalling the
// session worker.
const subscriberBuffer = 64

// Broadcaster fans session events out to status stream subscribers
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan model.Event]bool
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan model.Event]bool)}
}

// Subscribe registers a status stream reader. The returned channel is
// closed by Unsubscribe or when the session shuts down; subscribing to a
// closed broadcaster yields an already-closed channel.
func (b *Broadcaster) Subscribe() chan model.Event {
	ch := make(chan model.Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = true
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.subscribers[ch] {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish delivers an event to every subscriber without blocking; a full
// subscriber buffer drops the event for that subscriber only.
func (b *Broadcaster) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel; later Publish calls are no-ops
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan model.Event]bool)
}
