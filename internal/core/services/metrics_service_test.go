package services

import (
	"errors"
	"testing"

	"watchparty/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

type countingExporter struct {
	joined, left, pushes, failures, corrections, chat, reactions int
	reasons                                                      []string
}

func (e *countingExporter) RecordSessionJoined(domain.PartyID)       { e.joined++ }
func (e *countingExporter) RecordSessionLeft(domain.PartyID, string) { e.left++ }
func (e *countingExporter) RecordChatMessage(domain.PartyID)         { e.chat++ }
func (e *countingExporter) RecordReaction(domain.PartyID)            { e.reactions++ }

func (e *countingExporter) RecordPlaybackPush(_ domain.PartyID, err error) {
	e.pushes++
	if err != nil {
		e.failures++
	}
}

func (e *countingExporter) RecordDriftCorrection(_ domain.PartyID, reason string, _ float64) {
	e.corrections++
	e.reasons = append(e.reasons, reason)
}

func TestMetricsService_AggregatesPerParty(t *testing.T) {
	m := NewMetricsService()

	m.RecordSessionJoined("p1")
	m.RecordSessionJoined("p1")
	m.RecordSessionLeft("p1", "leave")
	m.RecordPlaybackPush("p1", nil)
	m.RecordPlaybackPush("p1", errors.New("timeout"))
	m.RecordDriftCorrection("p1", domain.CorrectionDrift, 4.5)
	m.RecordDriftCorrection("p1", domain.CorrectionPlayState, 0.2)
	m.RecordChatMessage("p1")
	m.RecordReaction("p2")

	stats := m.GetPartyStats("p1")
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, int64(2), stats.Pushes)
	assert.Equal(t, int64(1), stats.PushFailures)
	assert.Equal(t, int64(2), stats.DriftCorrections)
	assert.Equal(t, 4.5, stats.MaxDriftSeconds)
	assert.Equal(t, int64(1), stats.ChatMessages)
	assert.Zero(t, stats.Reactions)
	assert.False(t, stats.LastActivity.IsZero())

	assert.Equal(t, int64(1), m.GetPartyStats("p2").Reactions)
	assert.Equal(t, 1, m.ActiveSessions())
}

func TestMetricsService_LeaveNeverGoesNegative(t *testing.T) {
	m := NewMetricsService()
	m.RecordSessionLeft("p1", "disconnect")

	assert.Zero(t, m.GetPartyStats("p1").ActiveSessions)
}

func TestMetricsService_UnknownPartyHasZeroStats(t *testing.T) {
	stats := NewMetricsService().GetPartyStats("nobody")
	assert.Equal(t, domain.PartyID("nobody"), stats.PartyID)
	assert.Zero(t, stats.Pushes)
}

func TestMetricsService_ForwardsToExporters(t *testing.T) {
	exp := &countingExporter{}
	m := NewMetricsService(exp)

	m.RecordSessionJoined("p1")
	m.RecordSessionLeft("p1", "leave")
	m.RecordPlaybackPush("p1", errors.New("boom"))
	m.RecordDriftCorrection("p1", domain.CorrectionJoin, 10)
	m.RecordChatMessage("p1")
	m.RecordReaction("p1")

	assert.Equal(t, 1, exp.joined)
	assert.Equal(t, 1, exp.left)
	assert.Equal(t, 1, exp.failures)
	assert.Equal(t, []string{domain.CorrectionJoin}, exp.reasons)
	assert.Equal(t, 1, exp.chat)
	assert.Equal(t, 1, exp.reactions)
}

func TestMetricsService_StatsAreCopies(t *testing.T) {
	m := NewMetricsService()
	m.RecordChatMessage("p1")

	stats := m.GetPartyStats("p1")
	stats.ChatMessages = 100
	assert.Equal(t, int64(1), m.GetPartyStats("p1").ChatMessages)
}
