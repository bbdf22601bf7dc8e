package memory

import (
	"context"
	"sort"
	"sync"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

type MemoryParticipantRepository struct {
	participants map[domain.PartyID]map[domain.UserID]domain.Participant
	mu           sync.RWMutex
}

func NewMemoryParticipantRepository() ports.ParticipantRepository {
	return &MemoryParticipantRepository{
		participants: make(map[domain.PartyID]map[domain.UserID]domain.Participant),
	}
}

// Upsert keeps the original JoinedAt when the row already exists.
func (r *MemoryParticipantRepository) Upsert(ctx context.Context, participant *domain.Participant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.participants[participant.PartyID]
	if !exists {
		members = make(map[domain.UserID]domain.Participant)
		r.participants[participant.PartyID] = members
	}

	if _, exists := members[participant.UserID]; exists {
		return false, nil
	}
	members[participant.UserID] = *participant
	return true, nil
}

func (r *MemoryParticipantRepository) Delete(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.participants[partyID]
	if _, exists := members[userID]; !exists {
		return domain.ErrParticipantNotFound
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(r.participants, partyID)
	}
	return nil
}

func (r *MemoryParticipantRepository) ListByParty(ctx context.Context, partyID domain.PartyID) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.participants[partyID]
	result := make([]*domain.Participant, 0, len(members))
	for _, p := range members {
		p := p
		result = append(result, &p)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].UserID < result[j].UserID
		}
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}
