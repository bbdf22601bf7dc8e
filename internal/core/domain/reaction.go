package domain

import (
	"time"
)

type ReactionID string

// ReactionEvent is the broadcast event name for reactions.
const ReactionEvent = "reaction"

// ReactionEmojis is the palette a session may broadcast.
var ReactionEmojis = []string{"🔥", "❤️", "⭐", "😂", "⚡"}

func IsReactionEmoji(emoji string) bool {
	for _, e := range ReactionEmojis {
		if e == emoji {
			return true
		}
	}
	return false
}

// ReactionPayload travels over the channel. It has no backing row.
type ReactionPayload struct {
	Emoji   string  `json:"emoji"`
	OriginX float64 `json:"origin_x"`
}

// Reaction is a payload being displayed by one session until ExpiresAt.
type Reaction struct {
	ID        ReactionID `json:"id"`
	Emoji     string     `json:"emoji"`
	OriginX   float64    `json:"origin_x"`
	ShownAt   time.Time  `json:"shown_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}
