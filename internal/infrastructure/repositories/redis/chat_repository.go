package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/utils"

	"github.com/redis/go-redis/v9"
)

type RedisChatRepository struct {
	client *redis.Client
}

func NewRedisChatRepository(client *redis.Client) ports.ChatRepository {
	return &RedisChatRepository{client: client}
}

func chatKey(id domain.PartyID) string {
	return keyPrefix + "chat:" + string(id)
}

func (r *RedisChatRepository) Insert(ctx context.Context, message *domain.ChatMessage) (*domain.ChatMessage, error) {
	stored := *message
	stored.ID = domain.MessageID(utils.GenerateMessageID())
	stored.CreatedAt = utils.Now()

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat message: %w", err)
	}
	if err := r.client.RPush(ctx, chatKey(stored.PartyID), data).Err(); err != nil {
		return nil, fmt.Errorf("failed to append chat message: %w", err)
	}
	return &stored, nil
}

func (r *RedisChatRepository) ListByParty(ctx context.Context, partyID domain.PartyID, limit int) ([]*domain.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	rows, err := r.client.LRange(ctx, chatKey(partyID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}

	messages := make([]*domain.ChatMessage, 0, len(rows))
	for _, row := range rows {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(row), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// RPush order is arrival order; clocks across instances may disagree.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}
