package domain

import (
	"time"
)

// Participant is a membership row keyed by (PartyID, UserID).
type Participant struct {
	PartyID  PartyID   `json:"party_id"`
	UserID   UserID    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Profile is what the external profile store knows about a user.
type Profile struct {
	UserID    UserID `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ParticipantView is a participant enriched for display.
type ParticipantView struct {
	UserID      UserID    `json:"user_id"`
	DisplayName string    `json:"username"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	IsCreator   bool      `json:"is_creator"`
}

// ParticipantOp tells whether a membership row appeared or went away.
type ParticipantOp string

const (
	ParticipantInserted ParticipantOp = "insert"
	ParticipantDeleted  ParticipantOp = "delete"
)

// ParticipantChange is the payload of a participant row-change notification.
type ParticipantChange struct {
	Op          ParticipantOp `json:"op"`
	Participant Participant   `json:"participant"`
}

// FallbackDisplayName is used when a participant has no usable profile.
func FallbackDisplayName(userID UserID) string {
	runes := []rune(string(userID))
	if len(runes) > 4 {
		runes = runes[:4]
	}
	return "User " + string(runes)
}

// DefaultSenderName labels chat messages from users without a profile.
const DefaultSenderName = "User"
