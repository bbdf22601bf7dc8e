package redis

import (
	"context"
	"fmt"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// Members of a party live in a sorted set scored by join time. Equal scores
// sort by member, which gives the (JoinedAt, UserID) order for free.
type RedisParticipantRepository struct {
	client *redis.Client
}

func NewRedisParticipantRepository(client *redis.Client) ports.ParticipantRepository {
	return &RedisParticipantRepository{client: client}
}

func participantsKey(id domain.PartyID) string {
	return keyPrefix + "participants:" + string(id)
}

func (r *RedisParticipantRepository) Upsert(ctx context.Context, participant *domain.Participant) (bool, error) {
	added, err := r.client.ZAddNX(ctx, participantsKey(participant.PartyID), redis.Z{
		Score:  float64(participant.JoinedAt.UnixMicro()),
		Member: string(participant.UserID),
	}).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add participant: %w", err)
	}
	return added > 0, nil
}

func (r *RedisParticipantRepository) Delete(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error {
	removed, err := r.client.ZRem(ctx, participantsKey(partyID), string(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if removed == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (r *RedisParticipantRepository) ListByParty(ctx context.Context, partyID domain.PartyID) ([]*domain.Participant, error) {
	members, err := r.client.ZRangeWithScores(ctx, participantsKey(partyID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	participants := make([]*domain.Participant, 0, len(members))
	for _, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			continue
		}
		participants = append(participants, &domain.Participant{
			PartyID:  partyID,
			UserID:   domain.UserID(userID),
			JoinedAt: time.UnixMicro(int64(m.Score)).UTC(),
		})
	}
	return participants, nil
}
