package domain

import (
	"time"
)

// PartyStats aggregates what sessions of one party did on this instance.
type PartyStats struct {
	PartyID          PartyID   `json:"party_id"`
	ActiveSessions   int       `json:"active_sessions"`
	Pushes           int64     `json:"pushes"`
	PushFailures     int64     `json:"push_failures"`
	DriftCorrections int64     `json:"drift_corrections"`
	MaxDriftSeconds  float64   `json:"max_drift_seconds"`
	ChatMessages     int64     `json:"chat_messages"`
	Reactions        int64     `json:"reactions"`
	LastActivity     time.Time `json:"last_activity"`
}

// Correction reasons reported to metrics.
const (
	CorrectionDrift     = "drift"
	CorrectionPlayState = "play_state"
	CorrectionBoth      = "drift_and_play_state"
	CorrectionManual    = "manual"
	CorrectionJoin      = "join"
)
