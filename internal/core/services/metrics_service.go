package services

import (
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

// MetricsService keeps per-party counters for the stats endpoint and fans
// every record out to the configured exporters.
type MetricsService struct {
	mu sync.RWMutex

	parties   map[domain.PartyID]*domain.PartyStats
	exporters []ports.SessionMetrics
}

func NewMetricsService(exporters ...ports.SessionMetrics) *MetricsService {
	return &MetricsService{
		parties:   make(map[domain.PartyID]*domain.PartyStats),
		exporters: exporters,
	}
}

func (m *MetricsService) RecordSessionJoined(partyID domain.PartyID) {
	m.update(partyID, func(s *domain.PartyStats) {
		s.ActiveSessions++
	})
	for _, e := range m.exporters {
		e.RecordSessionJoined(partyID)
	}
}

func (m *MetricsService) RecordSessionLeft(partyID domain.PartyID, reason string) {
	m.update(partyID, func(s *domain.PartyStats) {
		if s.ActiveSessions > 0 {
			s.ActiveSessions--
		}
	})
	for _, e := range m.exporters {
		e.RecordSessionLeft(partyID, reason)
	}
}

func (m *MetricsService) RecordPlaybackPush(partyID domain.PartyID, err error) {
	m.update(partyID, func(s *domain.PartyStats) {
		s.Pushes++
		if err != nil {
			s.PushFailures++
		}
	})
	for _, e := range m.exporters {
		e.RecordPlaybackPush(partyID, err)
	}
}

func (m *MetricsService) RecordDriftCorrection(partyID domain.PartyID, reason string, driftSeconds float64) {
	m.update(partyID, func(s *domain.PartyStats) {
		s.DriftCorrections++
		if driftSeconds > s.MaxDriftSeconds {
			s.MaxDriftSeconds = driftSeconds
		}
	})
	for _, e := range m.exporters {
		e.RecordDriftCorrection(partyID, reason, driftSeconds)
	}
}

func (m *MetricsService) RecordChatMessage(partyID domain.PartyID) {
	m.update(partyID, func(s *domain.PartyStats) {
		s.ChatMessages++
	})
	for _, e := range m.exporters {
		e.RecordChatMessage(partyID)
	}
}

func (m *MetricsService) RecordReaction(partyID domain.PartyID) {
	m.update(partyID, func(s *domain.PartyStats) {
		s.Reactions++
	})
	for _, e := range m.exporters {
		e.RecordReaction(partyID)
	}
}

// GetPartyStats returns a copy of the party's counters. Parties with no
// recorded activity on this instance get zero stats.
func (m *MetricsService) GetPartyStats(partyID domain.PartyID) *domain.PartyStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats, exists := m.parties[partyID]; exists {
		copied := *stats
		return &copied
	}
	return &domain.PartyStats{PartyID: partyID}
}

// ActiveSessions returns the number of joined sessions across all parties.
func (m *MetricsService) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, stats := range m.parties {
		total += stats.ActiveSessions
	}
	return total
}

func (m *MetricsService) update(partyID domain.PartyID, fn func(*domain.PartyStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.parties[partyID]
	if !exists {
		stats = &domain.PartyStats{PartyID: partyID}
		m.parties[partyID] = stats
	}
	fn(stats)
	stats.LastActivity = time.Now()
}
