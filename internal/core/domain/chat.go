package domain

import (
	"time"
)

type MessageID string

// ChatMessage is append-only. Sessions order messages by CreatedAt and break
// ties by arrival order.
type ChatMessage struct {
	ID        MessageID `json:"id"`
	PartyID   PartyID   `json:"party_id"`
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
