// Package changefeed decorates repositories so that every committed write is
// announced on the party's topic, the way a database change stream would.
package changefeed

import (
	"context"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"go.uber.org/zap"
)

type publisher struct {
	transport ports.ChannelTransport
	logger    *zap.SugaredLogger
}

// publish never fails the write it follows; a lost notification is logged.
func (p *publisher) publish(ctx context.Context, kind domain.EventKind, partyID domain.PartyID, payload interface{}) {
	event, err := domain.NewEvent(kind, partyID, payload)
	if err != nil {
		p.logger.Errorw("failed to build change event", "kind", kind, "party_id", partyID, "error", err)
		return
	}
	if err := p.transport.Publish(ctx, event); err != nil {
		p.logger.Warnw("failed to publish change event",
			"kind", kind,
			"party_id", partyID,
			"error", err,
		)
	}
}

type PartyRepository struct {
	ports.PartyRepository
	publisher
}

func NewPartyRepository(base ports.PartyRepository, transport ports.ChannelTransport, logger *zap.SugaredLogger) *PartyRepository {
	return &PartyRepository{
		PartyRepository: base,
		publisher:       publisher{transport: transport, logger: logger},
	}
}

func (r *PartyRepository) Create(ctx context.Context, party *domain.Party) error {
	if err := r.PartyRepository.Create(ctx, party); err != nil {
		return err
	}
	r.publish(ctx, domain.EventPartyUpdated, party.ID, party)
	return nil
}

func (r *PartyRepository) UpdatePlayback(ctx context.Context, id domain.PartyID, state domain.PlaybackState, at time.Time) (*domain.Party, error) {
	party, err := r.PartyRepository.UpdatePlayback(ctx, id, state, at)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, domain.EventPartyUpdated, party.ID, party)
	return party, nil
}

type ParticipantRepository struct {
	ports.ParticipantRepository
	publisher
}

func NewParticipantRepository(base ports.ParticipantRepository, transport ports.ChannelTransport, logger *zap.SugaredLogger) *ParticipantRepository {
	return &ParticipantRepository{
		ParticipantRepository: base,
		publisher:             publisher{transport: transport, logger: logger},
	}
}

// Upsert only announces rows that did not exist before.
func (r *ParticipantRepository) Upsert(ctx context.Context, participant *domain.Participant) (bool, error) {
	created, err := r.ParticipantRepository.Upsert(ctx, participant)
	if err != nil || !created {
		return created, err
	}
	r.publish(ctx, domain.EventParticipantChanged, participant.PartyID, domain.ParticipantChange{
		Op:          domain.ParticipantInserted,
		Participant: *participant,
	})
	return true, nil
}

func (r *ParticipantRepository) Delete(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error {
	if err := r.ParticipantRepository.Delete(ctx, partyID, userID); err != nil {
		return err
	}
	r.publish(ctx, domain.EventParticipantChanged, partyID, domain.ParticipantChange{
		Op:          domain.ParticipantDeleted,
		Participant: domain.Participant{PartyID: partyID, UserID: userID},
	})
	return nil
}

type ChatRepository struct {
	ports.ChatRepository
	publisher
}

func NewChatRepository(base ports.ChatRepository, transport ports.ChannelTransport, logger *zap.SugaredLogger) *ChatRepository {
	return &ChatRepository{
		ChatRepository: base,
		publisher:      publisher{transport: transport, logger: logger},
	}
}

func (r *ChatRepository) Insert(ctx context.Context, message *domain.ChatMessage) (*domain.ChatMessage, error) {
	stored, err := r.ChatRepository.Insert(ctx, message)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, domain.EventChatInserted, stored.PartyID, stored)
	return stored, nil
}
