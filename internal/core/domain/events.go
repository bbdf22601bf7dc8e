package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies which primitive of the party channel carried an event.
// Ordering holds within a kind, never across kinds.
type EventKind string

const (
	EventPartyUpdated       EventKind = "party.updated"
	EventParticipantChanged EventKind = "participant.changed"
	EventChatInserted       EventKind = "chat.inserted"
	EventBroadcast          EventKind = "broadcast"
)

// Event is the envelope delivered on a party topic.
type Event struct {
	Kind       EventKind       `json:"kind"`
	Topic      string          `json:"topic"`
	Name       string          `json:"name,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	InstanceID string          `json:"instance_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

// NewEvent marshals payload into an envelope for the party's topic.
func NewEvent(kind EventKind, partyID PartyID, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Event{
		Kind:    kind,
		Topic:   Topic(partyID),
		Payload: data,
		At:      time.Now(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Kind, err)
	}
	return nil
}
