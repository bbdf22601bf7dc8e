package services

import (
	"time"

	"watchparty/internal/core/domain"
)

// SyncCoordinator decides when the creator's session writes its local
// playback sample back to the party row. It is owned by one session loop and
// is not safe for concurrent use.
type SyncCoordinator struct {
	interval time.Duration

	lastPushedAt        time.Time
	lastPushedIsPlaying bool
	inFlight            bool
}

// NewSyncCoordinator seeds the play state with the row the session joined on,
// so that an unchanged state after join is not mistaken for a transition.
func NewSyncCoordinator(interval time.Duration, initial domain.PlaybackState) *SyncCoordinator {
	return &SyncCoordinator{
		interval:            interval,
		lastPushedIsPlaying: initial.IsPlaying,
	}
}

// ShouldPush reports whether a push is due: more than interval since the
// last push, or the play state differs from the last pushed one. Only one
// push may be in flight.
func (c *SyncCoordinator) ShouldPush(now time.Time, local domain.PlaybackState) bool {
	if c.inFlight {
		return false
	}
	if local.IsPlaying != c.lastPushedIsPlaying {
		return true
	}
	return c.lastPushedAt.IsZero() || now.Sub(c.lastPushedAt) > c.interval
}

// Begin records an attempted push.
func (c *SyncCoordinator) Begin(now time.Time, local domain.PlaybackState) {
	c.inFlight = true
	c.lastPushedAt = now
	c.lastPushedIsPlaying = local.IsPlaying
}

// Complete ends the in-flight push. A failed push makes the next tick push
// again.
func (c *SyncCoordinator) Complete(err error) {
	c.inFlight = false
	if err != nil {
		c.lastPushedAt = time.Time{}
	}
}

func (c *SyncCoordinator) InFlight() bool {
	return c.inFlight
}
