package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestClient connects to WATCHPARTY_TEST_REDIS_ADDR on a scratch database.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("WATCHPARTY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WATCHPARTY_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(addr, "", 15, 4, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestRedisPartyRepository(t *testing.T) {
	client := newTestClient(t)
	repo := NewRedisPartyRepository(client)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &domain.Party{ID: "p1", CreatorID: "a", LastUpdated: created, CreatedAt: created}))
	assert.Error(t, repo.Create(ctx, &domain.Party{ID: "p1"}))

	at := created.Add(time.Minute)
	updated, err := repo.UpdatePlayback(ctx, "p1", domain.PlaybackState{CurrentTime: 7, IsPlaying: true}, at)
	require.NoError(t, err)
	assert.Equal(t, 7.0, updated.CurrentTime)
	assert.True(t, updated.LastUpdated.Equal(at))

	fetched, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, fetched.IsPlaying)
	assert.Equal(t, domain.UserID("a"), fetched.CreatorID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
	_, err = repo.UpdatePlayback(ctx, "missing", domain.PlaybackState{}, at)
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)

	isMember, err := client.SIsMember(ctx, partyIndexKey, "p1").Result()
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestRedisParticipantRepository(t *testing.T) {
	client := newTestClient(t)
	repo := NewRedisParticipantRepository(client)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	created, err := repo.Upsert(ctx, &domain.Participant{PartyID: "p1", UserID: "b", JoinedAt: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Upsert(ctx, &domain.Participant{PartyID: "p1", UserID: "b", JoinedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.Upsert(ctx, &domain.Participant{PartyID: "p1", UserID: "a", JoinedAt: t0})
	require.NoError(t, err)

	list, err := repo.ListByParty(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.UserID("a"), list[0].UserID)
	assert.True(t, list[1].JoinedAt.Equal(t0.Add(time.Second)))

	require.NoError(t, repo.Delete(ctx, "p1", "b"))
	assert.ErrorIs(t, repo.Delete(ctx, "p1", "b"), domain.ErrParticipantNotFound)
}

func TestRedisChatRepository(t *testing.T) {
	client := newTestClient(t)
	repo := NewRedisChatRepository(client)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	defer func() { utils.Now = time.Now }()

	for i, text := range []string{"one", "two", "three"} {
		utils.Now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		_, err := repo.Insert(ctx, &domain.ChatMessage{PartyID: "p1", UserID: "a", Text: text})
		require.NoError(t, err)
	}

	all, err := repo.ListByParty(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Text)

	latest, err := repo.ListByParty(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Text)
	assert.Equal(t, "three", latest[1].Text)
}

func TestRedisProfileProvider(t *testing.T) {
	client := newTestClient(t)
	provider := NewRedisProfileProvider(client)
	ctx := context.Background()

	profile, err := provider.GetProfile(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, profile)

	require.NoError(t, provider.PutProfile(ctx, domain.Profile{UserID: "u1", Username: "Ann"}))
	profile, err = provider.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Ann", profile.Username)
}
