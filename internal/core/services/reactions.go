package services

import (
	"sort"
	"time"

	"watchparty/internal/core/domain"
)

// ReactionSet holds reactions currently on screen, each until its deadline.
// The owner drives expiry with a single timer set to NextDeadline.
type ReactionSet struct {
	ttl   time.Duration
	items map[domain.ReactionID]domain.Reaction
}

func NewReactionSet(ttl time.Duration) *ReactionSet {
	return &ReactionSet{
		ttl:   ttl,
		items: make(map[domain.ReactionID]domain.Reaction),
	}
}

func (r *ReactionSet) Add(id domain.ReactionID, payload domain.ReactionPayload, now time.Time) domain.Reaction {
	reaction := domain.Reaction{
		ID:        id,
		Emoji:     payload.Emoji,
		OriginX:   payload.OriginX,
		ShownAt:   now,
		ExpiresAt: now.Add(r.ttl),
	}
	r.items[id] = reaction
	return reaction
}

// Expire removes and returns reactions whose deadline is at or before now,
// oldest first.
func (r *ReactionSet) Expire(now time.Time) []domain.ReactionID {
	var expired []domain.Reaction
	for id, reaction := range r.items {
		if !reaction.ExpiresAt.After(now) {
			expired = append(expired, reaction)
			delete(r.items, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})

	ids := make([]domain.ReactionID, len(expired))
	for i, reaction := range expired {
		ids[i] = reaction.ID
	}
	return ids
}

// NextDeadline returns the earliest pending expiry.
func (r *ReactionSet) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, reaction := range r.items {
		if next.IsZero() || reaction.ExpiresAt.Before(next) {
			next = reaction.ExpiresAt
		}
	}
	return next, !next.IsZero()
}

// Active returns the reactions on screen ordered by display time.
func (r *ReactionSet) Active() []domain.Reaction {
	out := make([]domain.Reaction, 0, len(r.items))
	for _, reaction := range r.items {
		out = append(out, reaction)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ShownAt.Before(out[j].ShownAt)
	})
	return out
}

func (r *ReactionSet) Len() int {
	return len(r.items)
}

// Clear drops every pending reaction.
func (r *ReactionSet) Clear() {
	r.items = make(map[domain.ReactionID]domain.Reaction)
}
