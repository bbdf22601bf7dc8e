package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"go.uber.org/zap"
)

// LocalBus is an in-process ChannelTransport for single-instance deployments
// and tests. Each subscription has its own queue and delivery goroutine, so
// events of one subscription are delivered in publish order.
type LocalBus struct {
	queueSize int
	logger    *zap.SugaredLogger

	mu     sync.RWMutex
	topics map[string]map[string]*localSubscription
	closed bool
}

type localSubscription struct {
	*subscription
	queue chan domain.Event
}

func NewLocalBus(queueSize int, logger *zap.SugaredLogger) *LocalBus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &LocalBus{
		queueSize: queueSize,
		logger:    logger,
		topics:    make(map[string]map[string]*localSubscription),
	}
}

func (b *LocalBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) (ports.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, domain.ErrTransportClosed
	}

	sub := &localSubscription{
		subscription: newSubscription(topic, handler),
		queue:        make(chan domain.Event, b.queueSize),
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*localSubscription)
	}
	b.topics[topic][sub.id] = sub

	go b.deliver(sub)

	b.logger.Debugw("subscribed", "topic", topic, "subscription_id", sub.id)
	return sub, nil
}

func (b *LocalBus) deliver(sub *localSubscription) {
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case event := <-sub.queue:
			if sub.stopped() {
				return
			}
			sub.handler(event)
		}
	}
}

// Unsubscribe is idempotent. It must not be called from the subscription's
// own handler.
func (b *LocalBus) Unsubscribe(ctx context.Context, handle ports.Subscription) error {
	sub, ok := handle.(*localSubscription)
	if !ok {
		return domain.ErrSubscriptionUnknown
	}

	b.remove(sub)
	sub.end(nil)
	return sub.wait(ctx)
}

func (b *LocalBus) remove(sub *localSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}

func (b *LocalBus) Publish(ctx context.Context, event domain.Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	return b.fanOut(event, "")
}

// Broadcast delivers to every subscriber of sub's topic except sub itself.
func (b *LocalBus) Broadcast(ctx context.Context, handle ports.Subscription, name string, payload json.RawMessage) error {
	if handle == nil {
		return domain.ErrSubscriptionUnknown
	}
	event := domain.Event{
		Kind:    domain.EventBroadcast,
		Topic:   handle.Topic(),
		Name:    name,
		Origin:  handle.ID(),
		Payload: payload,
		At:      time.Now(),
	}
	return b.fanOut(event, handle.ID())
}

// fanOut never blocks the publisher. A full queue drops a broadcast, but a
// subscriber that cannot take a row change is cut off with ErrSlowSubscriber.
func (b *LocalBus) fanOut(event domain.Event, skip string) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return domain.ErrTransportClosed
	}

	var lagging []*localSubscription
	for id, sub := range b.topics[event.Topic] {
		if id == skip {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			if event.Kind == domain.EventBroadcast {
				b.logger.Debugw("subscriber queue full, dropping broadcast",
					"topic", event.Topic,
					"subscription_id", id,
				)
				continue
			}
			lagging = append(lagging, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range lagging {
		b.logger.Warnw("subscriber queue full, ending subscription",
			"topic", event.Topic,
			"kind", event.Kind,
			"subscription_id", sub.id,
		)
		b.remove(sub)
		sub.end(domain.ErrSlowSubscriber)
	}
	return nil
}

// Disconnect ends a subscription as if the transport had lost it.
func (b *LocalBus) Disconnect(handle ports.Subscription, cause error) error {
	sub, ok := handle.(*localSubscription)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSubscriptionUnknown, handle.ID())
	}
	if cause == nil {
		cause = domain.ErrTransportClosed
	}
	b.remove(sub)
	sub.end(cause)
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *LocalBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]map[string]*localSubscription)
	b.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.end(domain.ErrTransportClosed)
		}
	}
	return nil
}
