package services

import (
	"testing"
	"time"

	"watchparty/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionSet_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)
	r := NewReactionSet(3 * time.Second)

	first := r.Add("r1", domain.ReactionPayload{Emoji: "🔥", OriginX: 10}, now)
	r.Add("r2", domain.ReactionPayload{Emoji: "⭐", OriginX: 90}, now.Add(time.Second))

	assert.Equal(t, now.Add(3*time.Second), first.ExpiresAt)

	deadline, ok := r.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, first.ExpiresAt, deadline)

	assert.Empty(t, r.Expire(now.Add(2*time.Second)))
	assert.Equal(t, []domain.ReactionID{"r1"}, r.Expire(now.Add(3*time.Second)))
	assert.Equal(t, 1, r.Len())

	assert.Equal(t, []domain.ReactionID{"r2"}, r.Expire(now.Add(time.Hour)))
	_, ok = r.NextDeadline()
	assert.False(t, ok)
}

func TestReactionSet_ExpireOrdersOldestFirst(t *testing.T) {
	now := time.Now()
	r := NewReactionSet(time.Second)
	r.Add("c", domain.ReactionPayload{Emoji: "⚡"}, now.Add(200*time.Millisecond))
	r.Add("a", domain.ReactionPayload{Emoji: "⚡"}, now)
	r.Add("b", domain.ReactionPayload{Emoji: "⚡"}, now.Add(100*time.Millisecond))

	assert.Equal(t, []domain.ReactionID{"a", "b", "c"}, r.Expire(now.Add(time.Minute)))
}

func TestReactionSet_ActiveAndClear(t *testing.T) {
	now := time.Now()
	r := NewReactionSet(time.Second)
	r.Add("b", domain.ReactionPayload{Emoji: "😂"}, now.Add(time.Millisecond))
	r.Add("a", domain.ReactionPayload{Emoji: "❤️"}, now)

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, domain.ReactionID("a"), active[0].ID)

	r.Clear()
	assert.Zero(t, r.Len())
}

func TestValidateReaction(t *testing.T) {
	tests := []struct {
		name    string
		payload domain.ReactionPayload
		wantErr bool
	}{
		{"fire", domain.ReactionPayload{Emoji: "🔥", OriginX: 50}, false},
		{"left edge", domain.ReactionPayload{Emoji: "❤️", OriginX: 0}, false},
		{"right edge", domain.ReactionPayload{Emoji: "⚡", OriginX: 100}, false},
		{"not in palette", domain.ReactionPayload{Emoji: "👍", OriginX: 50}, true},
		{"empty emoji", domain.ReactionPayload{OriginX: 50}, true},
		{"origin below range", domain.ReactionPayload{Emoji: "⭐", OriginX: -1}, true},
		{"origin above range", domain.ReactionPayload{Emoji: "⭐", OriginX: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReaction(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidReaction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
