package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	partyKeyPrefix = keyPrefix + "party:"
	partyIndexKey  = keyPrefix + "parties"

	maxUpdateAttempts = 5
)

type RedisPartyRepository struct {
	client *redis.Client
}

func NewRedisPartyRepository(client *redis.Client) ports.PartyRepository {
	return &RedisPartyRepository{client: client}
}

func partyKey(id domain.PartyID) string {
	return partyKeyPrefix + string(id)
}

func (r *RedisPartyRepository) Create(ctx context.Context, party *domain.Party) error {
	data, err := json.Marshal(party)
	if err != nil {
		return fmt.Errorf("failed to marshal party: %w", err)
	}

	created, err := r.client.SetNX(ctx, partyKey(party.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store party in Redis: %w", err)
	}
	if !created {
		return fmt.Errorf("party already exists: %s", party.ID)
	}

	if err := r.client.SAdd(ctx, partyIndexKey, string(party.ID)).Err(); err != nil {
		return fmt.Errorf("failed to index party: %w", err)
	}
	return nil
}

func (r *RedisPartyRepository) GetByID(ctx context.Context, id domain.PartyID) (*domain.Party, error) {
	return getParty(ctx, r.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getParty(ctx context.Context, c getter, id domain.PartyID) (*domain.Party, error) {
	data, err := c.Get(ctx, partyKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get party from Redis: %w", err)
	}

	var party domain.Party
	if err := json.Unmarshal(data, &party); err != nil {
		return nil, fmt.Errorf("failed to unmarshal party: %w", err)
	}
	return &party, nil
}

// UpdatePlayback is an optimistic read-modify-write under WATCH. Concurrent
// writers retry until one of them commits.
func (r *RedisPartyRepository) UpdatePlayback(ctx context.Context, id domain.PartyID, state domain.PlaybackState, at time.Time) (*domain.Party, error) {
	key := partyKey(id)
	var updated *domain.Party

	txf := func(tx *redis.Tx) error {
		party, err := getParty(ctx, tx, id)
		if err != nil {
			return err
		}

		party.CurrentTime = state.CurrentTime
		party.IsPlaying = state.IsPlaying
		party.LastUpdated = at

		data, err := json.Marshal(party)
		if err != nil {
			return fmt.Errorf("failed to marshal party: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = party
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to update party %s: too much contention", id)
}
