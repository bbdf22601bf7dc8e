package services

import (
	"context"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultEnrichConcurrency = 8

// PresenceTracker answers "who is here" for a party: membership rows ordered
// by join time, each enriched with a display profile.
type PresenceTracker struct {
	participants ports.ParticipantRepository
	profiles     ports.ProfileProvider
	concurrency  int
	logger       *zap.SugaredLogger
}

func NewPresenceTracker(
	participants ports.ParticipantRepository,
	profiles ports.ProfileProvider,
	concurrency int,
	logger *zap.SugaredLogger,
) *PresenceTracker {
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	return &PresenceTracker{
		participants: participants,
		profiles:     profiles,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// List returns the party's participants. A failed or missing profile yields
// a fallback label for that participant only.
func (p *PresenceTracker) List(ctx context.Context, partyID domain.PartyID, creatorID domain.UserID) ([]domain.ParticipantView, error) {
	rows, err := p.participants.ListByParty(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	views := make([]domain.ParticipantView, len(rows))
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, row := range rows {
		views[i] = domain.ParticipantView{
			UserID:      row.UserID,
			DisplayName: domain.FallbackDisplayName(row.UserID),
			JoinedAt:    row.JoinedAt,
			IsCreator:   row.UserID == creatorID,
		}
		i := i
		g.Go(func() error {
			p.enrich(ctx, &views[i])
			return nil
		})
	}
	_ = g.Wait()

	return views, nil
}

func (p *PresenceTracker) enrich(ctx context.Context, view *domain.ParticipantView) {
	if p.profiles == nil {
		return
	}
	profile, err := p.profiles.GetProfile(ctx, view.UserID)
	if err != nil {
		p.logger.Debugw("profile lookup failed, using fallback name",
			"user_id", view.UserID,
			"error", err,
		)
		return
	}
	if profile == nil {
		return
	}
	if profile.Username != "" {
		view.DisplayName = profile.Username
	}
	view.AvatarURL = profile.AvatarURL
}

// HostPresent reports whether the creator is among the participants.
func HostPresent(participants []domain.ParticipantView) bool {
	for _, p := range participants {
		if p.IsCreator {
			return true
		}
	}
	return false
}
