package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 256

// InProcBus fans events out to in-process subscribers over buffered
// channels. A slow subscriber drops messages rather than blocking the
// publisher.
type InProcBus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	closed      bool
}

// NewInProcBus creates an in-process bus.
func NewInProcBus() *InProcBus {
	return &InProcBus{
		subscribers: make(map[int]chan Event),
	}
}

// Publish delivers the event to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *InProcBus) Publish(_ context.Context, event Event) error {
	// Sends are non-blocking, so the lock is held through the fan-out to
	// keep Close from closing a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe registers handler until ctx is cancelled or the bus closes.
func (b *InProcBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch
	b.mu.Unlock()

	go func() {
		defer b.unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				handler(event)
			}
		}
	}()
	return nil
}

func (b *InProcBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Close drops all subscribers.
func (b *InProcBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	return nil
}
