package distributed

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"watchparty/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEventBus(t *testing.T) (*EventBus, *redis.Client) {
	t.Helper()
	addr := os.Getenv("WATCHPARTY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WATCHPARTY_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())

	bus := NewEventBus(client, "test-instance", zap.NewNop().Sugar())
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})
	return bus, client
}

func TestEventBus_SlowHandlerLosesNothing(t *testing.T) {
	bus, _ := newTestEventBus(t)
	ctx := context.Background()
	partyID := domain.PartyID(fmt.Sprintf("slow-%d", time.Now().UnixNano()))
	topic := domain.Topic(partyID)

	var got recorder
	_, err := bus.Subscribe(ctx, topic, func(event domain.Event) {
		time.Sleep(2 * time.Millisecond)
		got.handle(event)
	})
	require.NoError(t, err)

	const published = 100
	for i := 0; i < published; i++ {
		event, err := domain.NewEvent(domain.EventChatInserted, partyID, map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, event))
	}

	require.Eventually(t, func() bool { return got.len() == published }, 5*time.Second, 10*time.Millisecond)
	for i, event := range got.all() {
		var payload map[string]int
		require.NoError(t, event.Decode(&payload))
		assert.Equal(t, i, payload["n"])
	}
}

func TestEventBus_LostConnectionEndsSubscription(t *testing.T) {
	bus, client := newTestEventBus(t)
	bus.pingInterval = 100 * time.Millisecond
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, domain.Topic("lost"), func(domain.Event) {})
	require.NoError(t, err)

	require.NoError(t, client.ClientKillByFilter(ctx, "TYPE", "pubsub").Err())

	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("subscription outlived its connection")
	}
	assert.ErrorIs(t, sub.Err(), domain.ErrTransportClosed)
}
