package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/retry"
	"watchparty/pkg/tracing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "watchparty:"

	// A subscription idle this long is pinged; a second silent interval
	// ends it.
	defaultPingInterval = 10 * time.Second
)

// EventBus is the Redis pub/sub ChannelTransport. Every subscription owns its
// own Redis subscription so that unsubscribing one session never affects
// another on the same instance.
type EventBus struct {
	client     *redis.Client
	instanceID   string
	retry        retry.Config
	pingInterval time.Duration
	logger       *zap.SugaredLogger

	mu     sync.Mutex
	subs   map[string]*redisSubscription
	closed bool
}

type redisSubscription struct {
	*subscription
	pubsub *redis.PubSub
}

func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		retry: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
			Jitter:       true,
		},
		pingInterval: defaultPingInterval,
		logger:       logger,
		subs:   make(map[string]*redisSubscription),
	}
}

func channelFor(topic string) string {
	return channelPrefix + topic
}

// Subscribe returns once Redis has confirmed the subscription.
func (eb *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) (ports.Subscription, error) {
	if eb.isClosed() {
		return nil, domain.ErrTransportClosed
	}
	channel := channelFor(topic)

	pubsub, err := retry.DoValue(ctx, eb.retry, func(ctx context.Context) (*redis.PubSub, error) {
		ps := eb.client.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		return ps, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		subscription: newSubscription(topic, handler),
		pubsub:       pubsub,
	}

	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		_ = pubsub.Close()
		return nil, domain.ErrTransportClosed
	}
	eb.subs[sub.id] = sub
	eb.mu.Unlock()

	go eb.deliver(sub)

	eb.logger.Debugw("subscribed",
		"channel", channel,
		"subscription_id", sub.id,
	)
	return sub, nil
}

// deliver reads the subscription's connection directly, so a slow handler
// holds back the read and no message is dropped. A lost connection ends the
// subscription with ErrTransportClosed.
func (eb *EventBus) deliver(sub *redisSubscription) {
	defer close(sub.done)
	defer eb.forget(sub)

	ctx := context.Background()
	awaitingPong := false
	for {
		msg, err := sub.pubsub.ReceiveTimeout(ctx, eb.pingInterval)
		if sub.stopped() {
			return
		}
		if err != nil {
			if isTimeout(err) && !awaitingPong {
				if pingErr := sub.pubsub.Ping(ctx); pingErr == nil {
					awaitingPong = true
					continue
				}
			}
			eb.logger.Warnw("subscription connection lost",
				"topic", sub.topic,
				"subscription_id", sub.id,
				"error", err,
			)
			sub.end(fmt.Errorf("%w: %v", domain.ErrTransportClosed, err))
			_ = sub.pubsub.Close()
			return
		}
		awaitingPong = false

		m, ok := msg.(*redis.Message)
		if !ok {
			// pong or subscription confirmation
			continue
		}

		var event domain.Event
		if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
			eb.logger.Warnw("failed to unmarshal event",
				"error", err,
				"channel", m.Channel,
			)
			continue
		}

		// Broadcasts are never echoed to their sender.
		if event.Kind == domain.EventBroadcast && event.Origin == sub.id {
			continue
		}
		sub.handler(event)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Unsubscribe is idempotent. It must not be called from the subscription's
// own handler.
func (eb *EventBus) Unsubscribe(ctx context.Context, handle ports.Subscription) error {
	sub, ok := handle.(*redisSubscription)
	if !ok {
		return domain.ErrSubscriptionUnknown
	}

	sub.end(nil)
	eb.forget(sub)
	if err := sub.pubsub.Close(); err != nil {
		eb.logger.Debugw("pubsub close failed", "subscription_id", sub.id, "error", err)
	}
	return sub.wait(ctx)
}

func (eb *EventBus) forget(sub *redisSubscription) {
	eb.mu.Lock()
	delete(eb.subs, sub.id)
	eb.mu.Unlock()
}

func (eb *EventBus) isClosed() bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.closed
}

func (eb *EventBus) Publish(ctx context.Context, event domain.Event) error {
	event.InstanceID = eb.instanceID
	if event.At.IsZero() {
		event.At = time.Now()
	}
	return eb.publish(ctx, event)
}

func (eb *EventBus) Broadcast(ctx context.Context, handle ports.Subscription, name string, payload json.RawMessage) error {
	if handle == nil {
		return domain.ErrSubscriptionUnknown
	}
	return eb.publish(ctx, domain.Event{
		Kind:       domain.EventBroadcast,
		Topic:      handle.Topic(),
		Name:       name,
		Origin:     handle.ID(),
		InstanceID: eb.instanceID,
		Payload:    payload,
		At:         time.Now(),
	})
}

func (eb *EventBus) publish(ctx context.Context, event domain.Event) (err error) {
	if eb.isClosed() {
		return domain.ErrTransportClosed
	}
	ctx, span := tracing.TraceTransportOperation(ctx, "publish", event.Topic)
	defer func() { tracing.End(span, err) }()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := channelFor(event.Topic)
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"kind", event.Kind,
		"channel", channel,
	)
	return nil
}

// Close ends every live subscription with ErrTransportClosed. The Redis
// client is owned by the caller and stays open.
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return nil
	}
	eb.closed = true
	subs := eb.subs
	eb.subs = make(map[string]*redisSubscription)
	eb.mu.Unlock()

	for _, sub := range subs {
		sub.end(domain.ErrTransportClosed)
		_ = sub.pubsub.Close()
	}
	return nil
}
