package redis

import (
	"context"
	"fmt"

	"watchparty/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// RedisProfileProvider reads profiles stored as hashes by the account service.
type RedisProfileProvider struct {
	client *redis.Client
}

func NewRedisProfileProvider(client *redis.Client) *RedisProfileProvider {
	return &RedisProfileProvider{client: client}
}

func profileKey(id domain.UserID) string {
	return keyPrefix + "profile:" + string(id)
}

func (p *RedisProfileProvider) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	fields, err := p.client.HGetAll(ctx, profileKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &domain.Profile{
		UserID:    userID,
		Username:  fields["username"],
		AvatarURL: fields["avatar_url"],
	}, nil
}

func (p *RedisProfileProvider) PutProfile(ctx context.Context, profile domain.Profile) error {
	err := p.client.HSet(ctx, profileKey(profile.UserID),
		"username", profile.Username,
		"avatar_url", profile.AvatarURL,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}
