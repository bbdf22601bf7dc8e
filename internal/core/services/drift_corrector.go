package services

import (
	"math"
	"time"

	"watchparty/internal/core/domain"
)

// Correction is one corrective action: seek to Position, then set the play
// state.
type Correction struct {
	Position float64
	Playing  bool
	Reason   string
	Drift    float64
}

// Apply performs the seek and the play-state change back to back.
func (c Correction) Apply(player interface {
	Seek(seconds float64)
	SetPlaying(playing bool)
}) {
	player.Seek(c.Position)
	player.SetPlaying(c.Playing)
}

// DriftCorrector reconciles a follower's local playback against party rows.
// It is owned by one session loop.
type DriftCorrector struct {
	threshold float64
	lastSeen  time.Time
}

func NewDriftCorrector(threshold time.Duration) *DriftCorrector {
	return &DriftCorrector{threshold: threshold.Seconds()}
}

// Evaluate returns the correction for a newly delivered row, if any. Rows not
// newer than the last one seen are ignored.
func (d *DriftCorrector) Evaluate(party domain.Party, local domain.PlaybackState) (Correction, bool) {
	if !d.lastSeen.IsZero() && !party.LastUpdated.After(d.lastSeen) {
		return Correction{}, false
	}
	d.lastSeen = party.LastUpdated

	drift := math.Abs(party.CurrentTime - local.CurrentTime)
	driftDue := drift > d.threshold
	stateDue := party.IsPlaying != local.IsPlaying

	var reason string
	switch {
	case driftDue && stateDue:
		reason = domain.CorrectionBoth
	case driftDue:
		reason = domain.CorrectionDrift
	case stateDue:
		reason = domain.CorrectionPlayState
	default:
		return Correction{}, false
	}

	return Correction{
		Position: party.CurrentTime,
		Playing:  party.IsPlaying,
		Reason:   reason,
		Drift:    drift,
	}, true
}

// Force returns a correction regardless of the threshold.
func (d *DriftCorrector) Force(party domain.Party, local domain.PlaybackState, reason string) Correction {
	d.Observe(party.LastUpdated)
	return Correction{
		Position: party.CurrentTime,
		Playing:  party.IsPlaying,
		Reason:   reason,
		Drift:    math.Abs(party.CurrentTime - local.CurrentTime),
	}
}

// Observe marks rows up to at as already handled.
func (d *DriftCorrector) Observe(at time.Time) {
	if at.After(d.lastSeen) {
		d.lastSeen = at
	}
}

// LastSeen is the LastUpdated of the newest row evaluated.
func (d *DriftCorrector) LastSeen() time.Time {
	return d.lastSeen
}
