package ports

import (
	"context"

	"watchparty/internal/core/domain"
)

type PartyService interface {
	CreateParty(ctx context.Context, creator domain.UserID, roomName, contentID, contentType string) (*domain.Party, error)
	GetParty(ctx context.Context, partyID domain.PartyID) (*domain.Party, error)
	UpdatePlayback(ctx context.Context, partyID domain.PartyID, actor domain.UserID, state domain.PlaybackState) (*domain.Party, error)
	AddParticipant(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error
	RemoveParticipant(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error
	ListParticipants(ctx context.Context, partyID domain.PartyID) ([]domain.ParticipantView, error)
	ListMessages(ctx context.Context, partyID domain.PartyID, limit int) ([]*domain.ChatMessage, error)
	GetPartyStats(ctx context.Context, partyID domain.PartyID) (*domain.PartyStats, error)
}

type ChatService interface {
	SendMessage(ctx context.Context, partyID domain.PartyID, userID domain.UserID, text string) (*domain.ChatMessage, error)
	BroadcastReaction(ctx context.Context, sub Subscription, payload domain.ReactionPayload) error
}

// SessionView receives everything a session wants rendered. Calls come from
// the session's dispatch loop only, never after the session has left.
type SessionView interface {
	StateChanged(state domain.SessionState)
	PartyChanged(party domain.Party)
	ParticipantsChanged(participants []domain.ParticipantView)
	HostPresenceChanged(present bool)
	ChatHistory(messages []domain.ChatMessage)
	ChatMessageAdded(message domain.ChatMessage, position int)
	ReactionShown(reaction domain.Reaction)
	ReactionExpired(id domain.ReactionID)
}

type SessionMetrics interface {
	RecordSessionJoined(partyID domain.PartyID)
	RecordSessionLeft(partyID domain.PartyID, reason string)
	RecordPlaybackPush(partyID domain.PartyID, err error)
	RecordDriftCorrection(partyID domain.PartyID, reason string, driftSeconds float64)
	RecordChatMessage(partyID domain.PartyID)
	RecordReaction(partyID domain.PartyID)
}
