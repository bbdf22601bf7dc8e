package domain

import (
	"strings"
	"time"
)

type PartyID string
type UserID string

// TopicPrefix namespaces the per-party channel.
const TopicPrefix = "party:"

// Topic returns the channel topic for a party.
func Topic(id PartyID) string {
	return TopicPrefix + string(id)
}

// PartyIDFromTopic reverses Topic.
func PartyIDFromTopic(topic string) (PartyID, bool) {
	if !strings.HasPrefix(topic, TopicPrefix) || len(topic) == len(TopicPrefix) {
		return "", false
	}
	return PartyID(strings.TrimPrefix(topic, TopicPrefix)), true
}

// Party is the authoritative record for one group session. Only the creator
// may mutate CurrentTime/IsPlaying.
type Party struct {
	ID          PartyID   `json:"id"`
	RoomName    string    `json:"room_name"`
	CreatorID   UserID    `json:"creator_id"`
	ContentID   string    `json:"content_id"`
	ContentType string    `json:"content_type"`
	IsPlaying   bool      `json:"is_playing"`
	CurrentTime float64   `json:"current_time"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *Party) IsCreator(userID UserID) bool {
	return p != nil && p.CreatorID == userID
}

// Playback returns the authoritative playback sample carried by the row.
func (p *Party) Playback() PlaybackState {
	return PlaybackState{CurrentTime: p.CurrentTime, IsPlaying: p.IsPlaying}
}

// PlaybackState is a single playback sample, either local or authoritative.
type PlaybackState struct {
	CurrentTime float64 `json:"current_time"`
	IsPlaying   bool    `json:"is_playing"`
}
