package ports

import (
	"context"
	"time"

	"watchparty/internal/core/domain"
)

type PartyRepository interface {
	Create(ctx context.Context, party *domain.Party) error
	GetByID(ctx context.Context, id domain.PartyID) (*domain.Party, error)
	// UpdatePlayback writes the authoritative sample and bumps LastUpdated to at.
	UpdatePlayback(ctx context.Context, id domain.PartyID, state domain.PlaybackState, at time.Time) (*domain.Party, error)
}

type ParticipantRepository interface {
	// Upsert reports whether a new row was created.
	Upsert(ctx context.Context, participant *domain.Participant) (bool, error)
	// Delete returns domain.ErrParticipantNotFound when no row matched.
	Delete(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error
	// ListByParty is ordered by JoinedAt ascending.
	ListByParty(ctx context.Context, partyID domain.PartyID) ([]*domain.Participant, error)
}

type ChatRepository interface {
	// Insert assigns ID and CreatedAt.
	Insert(ctx context.Context, message *domain.ChatMessage) (*domain.ChatMessage, error)
	// ListByParty returns the latest limit rows ordered by CreatedAt ascending; limit <= 0 means all.
	ListByParty(ctx context.Context, partyID domain.PartyID, limit int) ([]*domain.ChatMessage, error)
}

// ProfileProvider returns nil, nil for users without a profile.
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error)
}
