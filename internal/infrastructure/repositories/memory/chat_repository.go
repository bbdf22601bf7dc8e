package memory

import (
	"context"
	"sort"
	"sync"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/utils"
)

type MemoryChatRepository struct {
	messages map[domain.PartyID][]domain.ChatMessage
	mu       sync.RWMutex
}

func NewMemoryChatRepository() ports.ChatRepository {
	return &MemoryChatRepository{
		messages: make(map[domain.PartyID][]domain.ChatMessage),
	}
}

func (r *MemoryChatRepository) Insert(ctx context.Context, message *domain.ChatMessage) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *message
	stored.ID = domain.MessageID(utils.GenerateMessageID())
	stored.CreatedAt = utils.Now()

	r.messages[stored.PartyID] = append(r.messages[stored.PartyID], stored)

	copied := stored
	return &copied, nil
}

func (r *MemoryChatRepository) ListByParty(ctx context.Context, partyID domain.PartyID, limit int) ([]*domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.messages[partyID]
	ordered := make([]domain.ChatMessage, len(stored))
	copy(ordered, stored)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}

	result := make([]*domain.ChatMessage, len(ordered))
	for i := range ordered {
		result[i] = &ordered[i]
	}
	return result, nil
}
