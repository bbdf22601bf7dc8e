package services

import (
	"context"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/cache"
)

// CachedProfileProvider caches profile lookups, including "no profile".
type CachedProfileProvider struct {
	base  ports.ProfileProvider
	cache *cache.Loader[*domain.Profile]
}

func NewCachedProfileProvider(base ports.ProfileProvider, ttl time.Duration) *CachedProfileProvider {
	return &CachedProfileProvider{
		base:  base,
		cache: cache.NewLoader[*domain.Profile](ttl),
	}
}

func (p *CachedProfileProvider) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	return p.cache.GetOrLoad(ctx, "profile:"+string(userID), func(ctx context.Context) (*domain.Profile, error) {
		return p.base.GetProfile(ctx, userID)
	})
}

// Invalidate drops a cached profile after it changed.
func (p *CachedProfileProvider) Invalidate(userID domain.UserID) {
	p.cache.Invalidate("profile:" + string(userID))
}

func (p *CachedProfileProvider) Close() {
	p.cache.Stop()
}
