package memory

import (
	"context"
	"sync"

	"watchparty/internal/core/domain"
)

// MemoryProfileProvider is a profile store seeded in process.
type MemoryProfileProvider struct {
	profiles map[domain.UserID]domain.Profile
	mu       sync.RWMutex
}

func NewMemoryProfileProvider(profiles ...domain.Profile) *MemoryProfileProvider {
	p := &MemoryProfileProvider{profiles: make(map[domain.UserID]domain.Profile)}
	for _, profile := range profiles {
		p.profiles[profile.UserID] = profile
	}
	return p
}

func (p *MemoryProfileProvider) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	profile, exists := p.profiles[userID]
	if !exists {
		return nil, nil
	}
	return &profile, nil
}

func (p *MemoryProfileProvider) PutProfile(ctx context.Context, profile domain.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.UserID] = profile
	return nil
}
