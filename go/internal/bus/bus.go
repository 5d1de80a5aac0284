// Package bus carries presence, social and sector events between the
// controller and whoever is listening. Transports are swappable behind the
// Bus interface: the in-process implementation mirrors a same-origin
// broadcast channel, the NATS implementation spans processes.
package bus

import "context"

// Handler receives a single event. Handlers must not block.
type Handler func(event Event)

// Bus publishes events to all current subscribers. Delivery is fire and
// forget: no acks, no ordering across subscribers, no redelivery.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}
