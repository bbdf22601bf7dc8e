package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

type MemoryPartyRepository struct {
	parties map[domain.PartyID]*domain.Party
	mu      sync.RWMutex
}

func NewMemoryPartyRepository() ports.PartyRepository {
	return &MemoryPartyRepository{
		parties: make(map[domain.PartyID]*domain.Party),
	}
}

func (r *MemoryPartyRepository) Create(ctx context.Context, party *domain.Party) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parties[party.ID]; exists {
		return fmt.Errorf("party already exists: %s", party.ID)
	}

	stored := *party
	r.parties[party.ID] = &stored
	return nil
}

func (r *MemoryPartyRepository) GetByID(ctx context.Context, id domain.PartyID) (*domain.Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	party, exists := r.parties[id]
	if !exists {
		return nil, domain.ErrPartyNotFound
	}

	copied := *party
	return &copied, nil
}

func (r *MemoryPartyRepository) UpdatePlayback(ctx context.Context, id domain.PartyID, state domain.PlaybackState, at time.Time) (*domain.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	party, exists := r.parties[id]
	if !exists {
		return nil, domain.ErrPartyNotFound
	}

	party.CurrentTime = state.CurrentTime
	party.IsPlaying = state.IsPlaying
	party.LastUpdated = at

	copied := *party
	return &copied, nil
}
