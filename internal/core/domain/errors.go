package domain

import "errors"

var (
	ErrPartyNotFound       = errors.New("party not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrJoinFailed          = errors.New("join failed")
	ErrNotCreator          = errors.New("only the party creator may update playback")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrMessageTooLong      = errors.New("message is too long")
	ErrInvalidReaction     = errors.New("invalid reaction")
	ErrInvalidPlayback     = errors.New("invalid playback state")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrSessionClosed       = errors.New("session closed")
	ErrSessionNotIdle      = errors.New("session already started")
	ErrTransportClosed     = errors.New("transport closed")
	ErrSubscriptionUnknown = errors.New("subscription not found")
	ErrSlowSubscriber      = errors.New("subscriber fell behind")
)
