package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/retry"
	"watchparty/pkg/tracing"
	"watchparty/pkg/utils"

	"go.uber.org/zap"
)

type SessionConfig struct {
	PushInterval     time.Duration
	DriftThreshold   time.Duration
	ReactionTTL      time.Duration
	HistoryLimit     int // newest rows loaded on join; 0 loads all
	SyncOnJoin       bool
	OperationTimeout time.Duration
	InboxSize        int
	LeaveRetry       retry.Config
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PushInterval:     5 * time.Second,
		DriftThreshold:   3 * time.Second,
		ReactionTTL:      3 * time.Second,
		HistoryLimit:     0,
		SyncOnJoin:       true,
		OperationTimeout: 5 * time.Second,
		InboxSize:        256,
		LeaveRetry: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
	}
}

// SessionDeps are the collaborators shared by every session of an instance.
type SessionDeps struct {
	Parties   ports.PartyService
	Chat      ports.ChatService
	Transport ports.ChannelTransport
	Metrics   ports.SessionMetrics
	Logger    *zap.SugaredLogger
}

// Snapshot is a point-in-time copy of what a session holds.
type Snapshot struct {
	State        domain.SessionState      `json:"state"`
	Party        domain.Party             `json:"party"`
	IsCreator    bool                     `json:"is_creator"`
	Participants []domain.ParticipantView `json:"participants"`
	HostPresent  bool                     `json:"host_present"`
	Messages     []domain.ChatMessage     `json:"messages"`
	Reactions    []domain.Reaction        `json:"reactions"`
}

// PartySession is one viewer attached to one party. All synchronization work
// runs on a single dispatch loop fed by the inbox; network calls run off the
// loop and post their results back. A session is single-use: once Left it
// cannot join again.
type PartySession struct {
	id      string
	partyID domain.PartyID
	userID  domain.UserID
	cfg     SessionConfig
	deps    SessionDeps
	player  ports.PlaybackAdapter
	view    ports.SessionView
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	state     domain.SessionState
	creatorID domain.UserID
	sub       ports.Subscription

	// joinMu serializes Join with the leave path.
	joinMu    sync.Mutex
	leaveOnce sync.Once

	ctx      context.Context
	cancel   context.CancelFunc
	inbox    chan inbound
	closing  chan struct{}
	loopDone chan struct{}
	done     chan struct{}
	async    sync.WaitGroup

	// owned by the dispatch loop once it runs
	party        domain.Party
	participants []domain.ParticipantView
	hostPresent  bool
	hostKnown    bool
	chat         *ChatLog
	reactions    *ReactionSet
	coordinator  *SyncCoordinator
	drift        *DriftCorrector
	listSeq      uint64
	syncPending  bool
}

func NewPartySession(
	partyID domain.PartyID,
	userID domain.UserID,
	player ports.PlaybackAdapter,
	view ports.SessionView,
	deps SessionDeps,
	cfg SessionConfig,
) *PartySession {
	id := utils.GenerateID("session")
	ctx, cancel := context.WithCancel(context.Background())
	return &PartySession{
		id:        id,
		partyID:   partyID,
		userID:    userID,
		cfg:       cfg,
		deps:      deps,
		player:    player,
		view:      view,
		logger:    deps.Logger.With("session_id", id, "party_id", partyID, "user_id", userID),
		state:     domain.SessionIdle,
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan inbound, cfg.InboxSize),
		closing:   make(chan struct{}),
		loopDone:  make(chan struct{}),
		done:      make(chan struct{}),
		chat:      NewChatLog(),
		reactions: NewReactionSet(cfg.ReactionTTL),
		drift:     NewDriftCorrector(cfg.DriftThreshold),
	}
}

func (s *PartySession) ID() string              { return s.id }
func (s *PartySession) PartyID() domain.PartyID { return s.partyID }
func (s *PartySession) UserID() domain.UserID   { return s.userID }

func (s *PartySession) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsCreator reports whether the local user owns the party clock.
func (s *PartySession) IsCreator() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creatorID != "" && s.creatorID == s.userID
}

// Done is closed once the session has reached Left.
func (s *PartySession) Done() <-chan struct{} {
	return s.done
}

// Join attaches the session to its party. Either the session ends up Active
// with a subscription and a participant row, or it ends up Left with neither.
func (s *PartySession) Join(ctx context.Context) (err error) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	if !s.transition(domain.SessionIdle, domain.SessionJoining) {
		return domain.ErrSessionNotIdle
	}
	s.view.StateChanged(domain.SessionJoining)

	ctx, span := tracing.TracePartyOperation(ctx, "join", string(s.partyID), string(s.userID))
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	var (
		upserted bool
		sub      ports.Subscription
	)
	fail := func(step string, cause error) error {
		s.logger.Warnw("join failed", "step", step, "error", cause)
		s.compensateJoin(sub, upserted)
		return fmt.Errorf("%w: %s: %w", domain.ErrJoinFailed, step, cause)
	}

	party, err := s.deps.Parties.GetParty(ctx, s.partyID)
	if err != nil {
		return fail("fetch party", err)
	}

	if err := s.deps.Parties.AddParticipant(ctx, s.partyID, s.userID); err != nil {
		return fail("add participant", err)
	}
	upserted = true

	// Events that arrive before the loop starts wait in the inbox.
	sub, err = s.deps.Transport.Subscribe(ctx, domain.Topic(s.partyID), s.onEvent)
	if err != nil {
		return fail("subscribe", err)
	}

	participants, err := s.deps.Parties.ListParticipants(ctx, s.partyID)
	if err != nil {
		return fail("list participants", err)
	}

	history, err := s.deps.Parties.ListMessages(ctx, s.partyID, s.cfg.HistoryLimit)
	if err != nil {
		return fail("load chat history", err)
	}

	s.mu.Lock()
	s.creatorID = party.CreatorID
	s.sub = sub
	s.mu.Unlock()

	s.party = *party
	s.coordinator = NewSyncCoordinator(s.cfg.PushInterval, party.Playback())
	for _, msg := range history {
		s.chat.Insert(*msg)
	}

	s.view.PartyChanged(s.party)
	s.setParticipants(participants)
	s.view.ChatHistory(s.chat.Messages())
	s.reconcileOnJoin()

	s.setState(domain.SessionActive)
	s.view.StateChanged(domain.SessionActive)
	s.deps.Metrics.RecordSessionJoined(s.partyID)

	go s.run()

	s.logger.Infow("session joined",
		"is_creator", party.CreatorID == s.userID,
		"participants", len(participants),
		"history", s.chat.Len(),
	)
	return nil
}

// compensateJoin undoes whatever a failed join already did and moves the
// session to Left.
func (s *PartySession) compensateJoin(sub ports.Subscription, upserted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	close(s.closing)
	if sub != nil {
		if err := s.deps.Transport.Unsubscribe(ctx, sub); err != nil {
			s.logger.Warnw("failed to unsubscribe after failed join", "error", err)
		}
	}
	if upserted {
		if err := s.deps.Parties.RemoveParticipant(ctx, s.partyID, s.userID); err != nil {
			s.logger.Warnw("failed to remove participant after failed join", "error", err)
		}
	}

	s.leaveOnce.Do(func() {
		s.cancel()
		close(s.loopDone)
		s.setState(domain.SessionLeft)
		s.view.StateChanged(domain.SessionLeft)
		close(s.done)
	})
}

func (s *PartySession) reconcileOnJoin() {
	if !s.cfg.SyncOnJoin || s.party.CreatorID == s.userID {
		s.drift.Observe(s.party.LastUpdated)
		return
	}
	correction, ok := s.drift.Evaluate(s.party, s.localPlayback())
	if !ok {
		return
	}
	correction.Reason = domain.CorrectionJoin
	s.applyCorrection(correction)
}

// Leave detaches the session: unsubscribe first, then delete the participant
// row. It is idempotent and never fails; storage errors are logged. Leave
// must not be called from a SessionView callback.
func (s *PartySession) Leave(ctx context.Context) {
	s.shutdown(ctx, "leave", false)
}

// Disconnect runs the disconnect path: Active moves to Disconnected and one
// best-effort leave follows in the background.
func (s *PartySession) Disconnect(cause error) {
	if !s.transition(domain.SessionActive, domain.SessionDisconnected) {
		return
	}
	s.logger.Warnw("session disconnected", "error", cause)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorw("panic during disconnect cleanup", "panic", r)
			}
		}()
		s.shutdown(context.Background(), "disconnect", true)
	}()
}

func (s *PartySession) shutdown(ctx context.Context, reason string, disconnected bool) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	s.leaveOnce.Do(func() {
		if s.State() == domain.SessionIdle {
			s.cancel()
			s.setState(domain.SessionLeft)
			close(s.done)
			return
		}

		var err error
		ctx, span := tracing.TracePartyOperation(ctx, "leave", string(s.partyID), string(s.userID))
		defer func() { tracing.End(span, err) }()

		close(s.closing)
		s.cancel()

		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()

		s.mu.RLock()
		sub := s.sub
		s.mu.RUnlock()
		if uerr := s.deps.Transport.Unsubscribe(opCtx, sub); uerr != nil && !errors.Is(uerr, domain.ErrSubscriptionUnknown) {
			s.logger.Warnw("failed to unsubscribe", "error", uerr)
		}

		<-s.loopDone
		s.async.Wait()
		s.reactions.Clear()

		if disconnected {
			s.view.StateChanged(domain.SessionDisconnected)
		}

		err = retry.Do(opCtx, s.cfg.LeaveRetry, func(ctx context.Context) error {
			return s.deps.Parties.RemoveParticipant(ctx, s.partyID, s.userID)
		})
		if err != nil {
			s.logger.Warnw("failed to remove participant on leave", "error", err)
		}

		s.setState(domain.SessionLeft)
		s.deps.Metrics.RecordSessionLeft(s.partyID, reason)
		s.view.StateChanged(domain.SessionLeft)
		close(s.done)

		s.logger.Infow("session left", "reason", reason)
	})
}

// Tick asks the session to sample the player. Ticks never block; if the
// inbox is full the tick is dropped and the next one samples again.
func (s *PartySession) Tick() {
	select {
	case s.inbox <- inbound{kind: inboundTick}:
	default:
	}
}

// SyncNow re-reads the party row and applies it regardless of drift.
func (s *PartySession) SyncNow() error {
	if err := s.checkActive(); err != nil {
		return err
	}
	return s.enqueue(inbound{kind: inboundSyncNow})
}

// SendMessage persists a chat message. The session renders it when the insert
// notification arrives, like every other session.
func (s *PartySession) SendMessage(ctx context.Context, text string) (msg *domain.ChatMessage, err error) {
	if err := s.checkActive(); err != nil {
		return nil, err
	}

	ctx, span := tracing.TracePartyOperation(ctx, "send_message", string(s.partyID), string(s.userID))
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	return s.deps.Chat.SendMessage(ctx, s.partyID, s.userID, text)
}

// SendReaction renders the reaction locally and broadcasts it to the other
// sessions. Only invalid payloads are reported; delivery failures are
// dropped.
func (s *PartySession) SendReaction(ctx context.Context, payload domain.ReactionPayload) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	if err := ValidateReaction(payload); err != nil {
		return err
	}

	if err := s.enqueue(inbound{kind: inboundLocalReaction, reaction: payload}); err != nil {
		return err
	}

	s.mu.RLock()
	sub := s.sub
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()
	if err := s.deps.Chat.BroadcastReaction(ctx, sub, payload); err != nil {
		s.logger.Debugw("reaction broadcast dropped", "error", err)
	}
	return nil
}

// Snapshot returns a copy of the session's state, taken on the loop.
func (s *PartySession) Snapshot(ctx context.Context) (Snapshot, error) {
	if state := s.State(); state != domain.SessionActive && state != domain.SessionDisconnected {
		return Snapshot{}, domain.ErrSessionClosed
	}
	reply := make(chan Snapshot, 1)
	if err := s.enqueue(inbound{kind: inboundSnapshot, reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.loopDone:
		return Snapshot{}, domain.ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *PartySession) checkActive() error {
	if s.State() != domain.SessionActive {
		return domain.ErrSessionClosed
	}
	return nil
}

func (s *PartySession) enqueue(msg inbound) error {
	select {
	case <-s.closing:
		return domain.ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- msg:
		return nil
	case <-s.closing:
		return domain.ErrSessionClosed
	}
}

func (s *PartySession) transition(from, to domain.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *PartySession) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *PartySession) localPlayback() domain.PlaybackState {
	return domain.PlaybackState{
		CurrentTime: s.player.GetCurrentTime(),
		IsPlaying:   s.player.GetIsPlaying(),
	}
}
