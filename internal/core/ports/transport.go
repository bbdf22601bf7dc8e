package ports

import (
	"context"
	"encoding/json"

	"watchparty/internal/core/domain"
)

// EventHandler is invoked sequentially for one subscription.
type EventHandler func(event domain.Event)

type Subscription interface {
	ID() string
	Topic() string
	// Done is closed once the subscription has ended and its handler will not run again.
	Done() <-chan struct{}
	// Err is non-nil when the transport ended the subscription on its own.
	Err() error
}

// ChannelTransport carries row-change notifications and raw broadcasts for party topics.
type ChannelTransport interface {
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)
	// Unsubscribe returns after any in-flight handler call has completed.
	Unsubscribe(ctx context.Context, sub Subscription) error
	// Publish delivers to every subscriber of event.Topic.
	Publish(ctx context.Context, event domain.Event) error
	// Broadcast sends a named event on sub's topic to every other subscriber.
	Broadcast(ctx context.Context, sub Subscription, name string, payload json.RawMessage) error
	Close() error
}

// PlaybackAdapter is the local video surface a session reads and corrects.
type PlaybackAdapter interface {
	GetCurrentTime() float64
	GetIsPlaying() bool
	Seek(seconds float64)
	SetPlaying(playing bool)
}
