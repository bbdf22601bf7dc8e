package services

import (
	"context"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/pkg/tracing"
	"watchparty/pkg/utils"
)

type inboundKind int

const (
	inboundEvent inboundKind = iota
	inboundTick
	inboundSyncNow
	inboundLocalReaction
	inboundPushResult
	inboundParticipants
	inboundPartyFetched
	inboundSnapshot
)

type inbound struct {
	kind inboundKind

	event        domain.Event
	reaction     domain.ReactionPayload
	party        *domain.Party
	participants []domain.ParticipantView
	seq          uint64
	err          error
	reply        chan<- Snapshot
}

// onEvent is the transport handler. It only hands events to the loop.
func (s *PartySession) onEvent(event domain.Event) {
	select {
	case s.inbox <- inbound{kind: inboundEvent, event: event}:
	case <-s.closing:
	}
}

func (s *PartySession) run() {
	defer close(s.loopDone)

	s.mu.RLock()
	subDone := s.sub.Done()
	s.mu.RUnlock()

	reactionTimer := time.NewTimer(time.Hour)
	reactionTimer.Stop()
	defer reactionTimer.Stop()
	var reactionC <-chan time.Time

	for {
		select {
		case <-s.closing:
			return
		case <-subDone:
			subDone = nil
			if err := s.sub.Err(); err != nil {
				s.Disconnect(err)
			}
		case msg := <-s.inbox:
			s.dispatch(msg)
		case now := <-reactionC:
			reactionC = nil
			for _, id := range s.reactions.Expire(now) {
				s.view.ReactionExpired(id)
			}
		}

		if reactionC == nil {
			if deadline, ok := s.reactions.NextDeadline(); ok {
				reactionTimer.Reset(time.Until(deadline))
				reactionC = reactionTimer.C
			}
		}
	}
}

func (s *PartySession) dispatch(msg inbound) {
	switch msg.kind {
	case inboundEvent:
		s.handleEvent(msg.event)
	case inboundTick:
		s.handleTick()
	case inboundSyncNow:
		s.handleSyncNow()
	case inboundLocalReaction:
		s.showReaction(msg.reaction)
	case inboundPushResult:
		s.handlePushResult(msg.party, msg.err)
	case inboundParticipants:
		s.handleParticipants(msg.seq, msg.participants, msg.err)
	case inboundPartyFetched:
		s.handlePartyFetched(msg.party, msg.err)
	case inboundSnapshot:
		msg.reply <- s.snapshot()
	}
}

func (s *PartySession) handleEvent(event domain.Event) {
	switch event.Kind {
	case domain.EventPartyUpdated:
		var party domain.Party
		if err := event.Decode(&party); err != nil {
			s.logger.Warnw("dropping malformed party update", "error", err)
			return
		}
		s.applyParty(party)

	case domain.EventParticipantChanged:
		s.refreshParticipants()

	case domain.EventChatInserted:
		var msg domain.ChatMessage
		if err := event.Decode(&msg); err != nil {
			s.logger.Warnw("dropping malformed chat message", "error", err)
			return
		}
		if msg.PartyID != s.partyID {
			return
		}
		if pos, added := s.chat.Insert(msg); added {
			s.view.ChatMessageAdded(msg, pos)
		}

	case domain.EventBroadcast:
		if event.Name != domain.ReactionEvent {
			return
		}
		var payload domain.ReactionPayload
		if err := event.Decode(&payload); err != nil {
			return
		}
		if ValidateReaction(payload) != nil {
			return
		}
		s.showReaction(payload)
	}
}

// applyParty takes a delivered party row. Followers reconcile against it;
// the creator only refreshes its copy.
func (s *PartySession) applyParty(party domain.Party) {
	if party.ID != s.partyID || party.LastUpdated.Before(s.party.LastUpdated) {
		return
	}
	s.party = party
	s.view.PartyChanged(party)

	if s.userID == party.CreatorID {
		return
	}
	if correction, ok := s.drift.Evaluate(party, s.localPlayback()); ok {
		s.applyCorrection(correction)
	}
}

func (s *PartySession) applyCorrection(c Correction) {
	c.Apply(s.player)
	s.deps.Metrics.RecordDriftCorrection(s.partyID, c.Reason, c.Drift)
	s.logger.Debugw("playback corrected",
		"reason", c.Reason,
		"drift", c.Drift,
		"position", c.Position,
		"playing", c.Playing,
	)
}

func (s *PartySession) handleTick() {
	// Only the creator writes the party clock.
	if s.userID != s.party.CreatorID {
		return
	}

	now := utils.Now()
	sample := s.localPlayback()
	if !s.coordinator.ShouldPush(now, sample) {
		return
	}
	s.coordinator.Begin(now, sample)

	s.goAsync(func(ctx context.Context) inbound {
		ctx, span := tracing.TracePartyOperation(ctx, "push", string(s.partyID), string(s.userID))
		party, err := s.deps.Parties.UpdatePlayback(ctx, s.partyID, s.userID, sample)
		tracing.End(span, err)
		return inbound{kind: inboundPushResult, party: party, err: err}
	})
}

func (s *PartySession) handlePushResult(party *domain.Party, err error) {
	s.coordinator.Complete(err)
	s.deps.Metrics.RecordPlaybackPush(s.partyID, err)
	if err != nil {
		s.logger.Warnw("playback push failed, retrying on next tick", "error", err)
		return
	}
	if party != nil {
		s.applyParty(*party)
	}
}

func (s *PartySession) handleSyncNow() {
	if s.userID == s.party.CreatorID || s.syncPending {
		return
	}
	s.syncPending = true

	s.goAsync(func(ctx context.Context) inbound {
		party, err := s.deps.Parties.GetParty(ctx, s.partyID)
		return inbound{kind: inboundPartyFetched, party: party, err: err}
	})
}

func (s *PartySession) handlePartyFetched(party *domain.Party, err error) {
	s.syncPending = false
	if err != nil {
		s.logger.Warnw("sync now failed", "error", err)
		return
	}
	if !party.LastUpdated.Before(s.party.LastUpdated) {
		s.party = *party
		s.view.PartyChanged(*party)
	}
	s.applyCorrection(s.drift.Force(s.party, s.localPlayback(), domain.CorrectionManual))
}

// refreshParticipants re-lists presence. Only the newest listing is applied.
func (s *PartySession) refreshParticipants() {
	s.listSeq++
	seq := s.listSeq

	s.goAsync(func(ctx context.Context) inbound {
		views, err := s.deps.Parties.ListParticipants(ctx, s.partyID)
		return inbound{kind: inboundParticipants, seq: seq, participants: views, err: err}
	})
}

func (s *PartySession) handleParticipants(seq uint64, views []domain.ParticipantView, err error) {
	if seq != s.listSeq {
		return
	}
	if err != nil {
		s.logger.Warnw("failed to refresh participants", "error", err)
		return
	}
	s.setParticipants(views)
}

func (s *PartySession) setParticipants(views []domain.ParticipantView) {
	s.participants = views
	s.view.ParticipantsChanged(views)

	present := HostPresent(views)
	if !s.hostKnown || present != s.hostPresent {
		s.hostKnown = true
		s.hostPresent = present
		s.view.HostPresenceChanged(present)
	}
}

func (s *PartySession) showReaction(payload domain.ReactionPayload) {
	reaction := s.reactions.Add(domain.ReactionID(utils.GenerateReactionID()), payload, time.Now())
	s.view.ReactionShown(reaction)
}

func (s *PartySession) snapshot() Snapshot {
	participants := make([]domain.ParticipantView, len(s.participants))
	copy(participants, s.participants)

	return Snapshot{
		State:        s.State(),
		Party:        s.party,
		IsCreator:    s.userID == s.party.CreatorID,
		Participants: participants,
		HostPresent:  s.hostPresent,
		Messages:     s.chat.Messages(),
		Reactions:    s.reactions.Active(),
	}
}

// goAsync runs a network call off the loop and posts its result back. The
// result is discarded once the session is closing.
func (s *PartySession) goAsync(fn func(ctx context.Context) inbound) {
	s.async.Add(1)
	go func() {
		defer s.async.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OperationTimeout)
		defer cancel()

		result := fn(ctx)
		select {
		case s.inbox <- result:
		case <-s.closing:
		}
	}()
}
