package services

import (
	"context"
	"errors"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/utils"
	"watchparty/pkg/validation"
)

type partyService struct {
	parties      ports.PartyRepository
	participants ports.ParticipantRepository
	messages     ports.ChatRepository
	presence     *PresenceTracker
	metrics      *MetricsService
}

func NewPartyService(
	parties ports.PartyRepository,
	participants ports.ParticipantRepository,
	messages ports.ChatRepository,
	presence *PresenceTracker,
	metrics *MetricsService,
) ports.PartyService {
	return &partyService{
		parties:      parties,
		participants: participants,
		messages:     messages,
		presence:     presence,
		metrics:      metrics,
	}
}

func (s *partyService) CreateParty(ctx context.Context, creator domain.UserID, roomName, contentID, contentType string) (*domain.Party, error) {
	for _, check := range []error{
		validation.ValidateUserID(string(creator)),
		validation.ValidateRoomName(roomName),
		validation.ValidateContentID(contentID),
		validation.ValidateContentType(contentType),
	} {
		if check != nil {
			return nil, invalidInput(check)
		}
	}

	now := utils.Now()
	party := &domain.Party{
		ID:          domain.PartyID(utils.GeneratePartyID()),
		RoomName:    utils.SanitizeString(roomName),
		CreatorID:   creator,
		ContentID:   contentID,
		ContentType: contentType,
		IsPlaying:   false,
		CurrentTime: 0,
		LastUpdated: now,
		CreatedAt:   now,
	}

	if err := s.parties.Create(ctx, party); err != nil {
		return nil, fmt.Errorf("failed to create party: %w", err)
	}

	return party, nil
}

func (s *partyService) GetParty(ctx context.Context, partyID domain.PartyID) (*domain.Party, error) {
	return s.parties.GetByID(ctx, partyID)
}

// UpdatePlayback writes a new authoritative sample. Only the creator may do so.
func (s *partyService) UpdatePlayback(ctx context.Context, partyID domain.PartyID, actor domain.UserID, state domain.PlaybackState) (*domain.Party, error) {
	if err := validation.ValidatePlaybackPosition(state.CurrentTime); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlayback, err)
	}

	party, err := s.parties.GetByID(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if !party.IsCreator(actor) {
		return nil, domain.ErrNotCreator
	}

	updated, err := s.parties.UpdatePlayback(ctx, partyID, state, utils.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update playback: %w", err)
	}
	return updated, nil
}

func (s *partyService) AddParticipant(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error {
	if err := validation.ValidateUserID(string(userID)); err != nil {
		return invalidInput(err)
	}
	if _, err := s.parties.GetByID(ctx, partyID); err != nil {
		return err
	}

	participant := &domain.Participant{
		PartyID:  partyID,
		UserID:   userID,
		JoinedAt: utils.Now(),
	}
	if _, err := s.participants.Upsert(ctx, participant); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// RemoveParticipant is idempotent: a missing row is not an error.
func (s *partyService) RemoveParticipant(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error {
	err := s.participants.Delete(ctx, partyID, userID)
	if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

func (s *partyService) ListParticipants(ctx context.Context, partyID domain.PartyID) ([]domain.ParticipantView, error) {
	party, err := s.parties.GetByID(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return s.presence.List(ctx, partyID, party.CreatorID)
}

func (s *partyService) ListMessages(ctx context.Context, partyID domain.PartyID, limit int) ([]*domain.ChatMessage, error) {
	if _, err := s.parties.GetByID(ctx, partyID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByParty(ctx, partyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *partyService) GetPartyStats(ctx context.Context, partyID domain.PartyID) (*domain.PartyStats, error) {
	if _, err := s.parties.GetByID(ctx, partyID); err != nil {
		return nil, err
	}
	return s.metrics.GetPartyStats(partyID), nil
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}
