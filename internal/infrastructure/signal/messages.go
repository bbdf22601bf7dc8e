package signal

import (
	"encoding/json"
	"time"

	"watchparty/internal/core/domain"
)

// Message is the envelope for both directions of the party socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server.
const (
	TypeTick     = "tick"
	TypeSyncNow  = "sync_now"
	TypeChat     = "chat"
	TypeReaction = "reaction"
	TypeLeave    = "leave"
)

// Server to client.
const (
	TypeState           = "state"
	TypeParty           = "party"
	TypeParticipants    = "participants"
	TypeChatHistory     = "chat_history"
	TypeChatMessage     = "chat_message"
	TypeReactionExpired = "reaction_expired"
	TypeSeek            = "seek"
	TypeSetPlaying      = "set_playing"
	TypeHostPresence    = "host_presence"
	TypeError           = "error"
)

type TickPayload struct {
	CurrentTime float64 `json:"current_time"`
	IsPlaying   bool    `json:"is_playing"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

// ReactionRequest leaves OriginX nil to let the server pick a position.
type ReactionRequest struct {
	Emoji   string   `json:"emoji"`
	OriginX *float64 `json:"origin_x,omitempty"`
}

type StatePayload struct {
	State domain.SessionState `json:"state"`
}

type PartyPayload struct {
	Party     domain.Party `json:"party"`
	IsCreator bool         `json:"is_creator"`
}

type ParticipantPayload struct {
	domain.ParticipantView
	IsYou bool `json:"is_you"`
}

type ParticipantsPayload struct {
	Participants []ParticipantPayload `json:"participants"`
}

type ChatHistoryPayload struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type ChatMessagePayload struct {
	Message  domain.ChatMessage `json:"message"`
	Position int                `json:"position"`
}

type ReactionPayload struct {
	Reaction domain.Reaction `json:"reaction"`
}

type ReactionExpiredPayload struct {
	ID domain.ReactionID `json:"id"`
}

type SeekPayload struct {
	Position float64 `json:"position"`
}

type SetPlayingPayload struct {
	Playing bool `json:"playing"`
}

type HostPresencePayload struct {
	Present bool `json:"present"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// outbound is queued for the write pump.
type outbound struct {
	msgType string
	data    []byte
	queued  time.Time
}
