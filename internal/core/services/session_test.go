package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/distributed"
	"watchparty/internal/infrastructure/repositories/changefeed"
	"watchparty/internal/infrastructure/repositories/memory"
	"watchparty/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlayer struct {
	mu      sync.Mutex
	time    float64
	playing bool
	seeks   []float64
}

func (p *fakePlayer) GetCurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

func (p *fakePlayer) GetIsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time = seconds
	p.seeks = append(p.seeks, seconds)
}

func (p *fakePlayer) SetPlaying(playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = playing
}

func (p *fakePlayer) set(t float64, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time = t
	p.playing = playing
}

func (p *fakePlayer) seekCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seeks)
}

type recordingView struct {
	mu           sync.Mutex
	calls        int
	states       []domain.SessionState
	party        domain.Party
	participants []domain.ParticipantView
	hostPresence []bool
	history      []domain.ChatMessage
	added        []domain.ChatMessage
	shown        []domain.Reaction
	expired      []domain.ReactionID
}

func (v *recordingView) record(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	fn()
}

func (v *recordingView) StateChanged(state domain.SessionState) {
	v.record(func() { v.states = append(v.states, state) })
}

func (v *recordingView) PartyChanged(party domain.Party) {
	v.record(func() { v.party = party })
}

func (v *recordingView) ParticipantsChanged(participants []domain.ParticipantView) {
	v.record(func() { v.participants = participants })
}

func (v *recordingView) HostPresenceChanged(present bool) {
	v.record(func() { v.hostPresence = append(v.hostPresence, present) })
}

func (v *recordingView) ChatHistory(messages []domain.ChatMessage) {
	v.record(func() { v.history = messages })
}

func (v *recordingView) ChatMessageAdded(message domain.ChatMessage, position int) {
	v.record(func() { v.added = append(v.added, message) })
}

func (v *recordingView) ReactionShown(reaction domain.Reaction) {
	v.record(func() { v.shown = append(v.shown, reaction) })
}

func (v *recordingView) ReactionExpired(id domain.ReactionID) {
	v.record(func() { v.expired = append(v.expired, id) })
}

func (v *recordingView) snapshot() recordingView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return recordingView{
		calls:        v.calls,
		states:       append([]domain.SessionState(nil), v.states...),
		party:        v.party,
		participants: append([]domain.ParticipantView(nil), v.participants...),
		hostPresence: append([]bool(nil), v.hostPresence...),
		history:      append([]domain.ChatMessage(nil), v.history...),
		added:        append([]domain.ChatMessage(nil), v.added...),
		shown:        append([]domain.Reaction(nil), v.shown...),
		expired:      append([]domain.ReactionID(nil), v.expired...),
	}
}

type sessionEnv struct {
	deps    SessionDeps
	cfg     SessionConfig
	bus     *distributed.LocalBus
	parties ports.PartyService
	metrics  *MetricsService
	messages ports.ChatRepository
	party    *domain.Party
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	bus := distributed.NewLocalBus(64, logger)

	partyRepo := changefeed.NewPartyRepository(memory.NewMemoryPartyRepository(), bus, logger)
	participantRepo := changefeed.NewParticipantRepository(memory.NewMemoryParticipantRepository(), bus, logger)
	chatRepo := changefeed.NewChatRepository(memory.NewMemoryChatRepository(), bus, logger)
	profiles := memory.NewMemoryProfileProvider(domain.Profile{UserID: "alice", Username: "Alice"})

	metrics := NewMetricsService()
	presence := NewPresenceTracker(participantRepo, profiles, 4, logger)
	parties := NewPartyService(partyRepo, participantRepo, chatRepo, presence, metrics)
	chat := NewChatService(partyRepo, chatRepo, profiles, bus, metrics, ChatConfig{MaxMessageLength: 500}, logger)

	party, err := parties.CreateParty(context.Background(), "alice", "Movie night", "tt0111161", "movie")
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	return &sessionEnv{
		deps: SessionDeps{
			Parties:   parties,
			Chat:      chat,
			Transport: bus,
			Metrics:   metrics,
			Logger:    logger,
		},
		cfg: SessionConfig{
			PushInterval:     5 * time.Second,
			DriftThreshold:   3 * time.Second,
			ReactionTTL:      50 * time.Millisecond,
			HistoryLimit:     50,
			SyncOnJoin:       true,
			OperationTimeout: 2 * time.Second,
			InboxSize:        64,
			LeaveRetry:       retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		},
		bus:      bus,
		parties:  parties,
		metrics:  metrics,
		messages: chatRepo,
		party:    party,
	}
}

func (e *sessionEnv) join(t *testing.T, userID domain.UserID) (*PartySession, *fakePlayer, *recordingView) {
	t.Helper()
	player := &fakePlayer{}
	view := &recordingView{}
	s := NewPartySession(e.party.ID, userID, player, view, e.deps, e.cfg)
	require.NoError(t, s.Join(context.Background()))
	t.Cleanup(func() { s.Leave(context.Background()) })
	return s, player, view
}

func (e *sessionEnv) participantIDs(t *testing.T) []domain.UserID {
	t.Helper()
	views, err := e.parties.ListParticipants(context.Background(), e.party.ID)
	require.NoError(t, err)
	ids := make([]domain.UserID, len(views))
	for i, v := range views {
		ids[i] = v.UserID
	}
	return ids
}

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func TestPartySession_JoinRendersInitialState(t *testing.T) {
	env := newSessionEnv(t)
	_, err := env.deps.Chat.SendMessage(context.Background(), env.party.ID, "alice", "welcome")
	require.NoError(t, err)

	s, _, view := env.join(t, "alice")

	assert.Equal(t, domain.SessionActive, s.State())
	assert.True(t, s.IsCreator())

	snap := view.snapshot()
	assert.Equal(t, []domain.SessionState{domain.SessionJoining, domain.SessionActive}, snap.states)
	assert.Equal(t, env.party.ID, snap.party.ID)
	require.Len(t, snap.participants, 1)
	assert.Equal(t, "Alice", snap.participants[0].DisplayName)
	assert.Equal(t, []bool{true}, snap.hostPresence)
	require.Len(t, snap.history, 1)
	assert.Equal(t, "welcome", snap.history[0].Text)

	assert.Equal(t, 1, env.metrics.GetPartyStats(env.party.ID).ActiveSessions)
}

func TestPartySession_JoinLoadsWholeHistoryByDefault(t *testing.T) {
	env := newSessionEnv(t)
	env.cfg.HistoryLimit = DefaultSessionConfig().HistoryLimit

	const stored = 260
	for i := 0; i < stored; i++ {
		_, err := env.messages.Insert(context.Background(), &domain.ChatMessage{
			PartyID:  env.party.ID,
			UserID:   "alice",
			Username: "Alice",
			Text:     fmt.Sprintf("m%d", i),
		})
		require.NoError(t, err)
	}

	_, _, view := env.join(t, "bob")

	snap := view.snapshot()
	require.Len(t, snap.history, stored)
	assert.Equal(t, "m0", snap.history[0].Text)
	assert.Equal(t, fmt.Sprintf("m%d", stored-1), snap.history[stored-1].Text)
}

func TestPartySession_JoinUnknownPartyEndsLeft(t *testing.T) {
	env := newSessionEnv(t)
	view := &recordingView{}
	s := NewPartySession("missing", "bob", &fakePlayer{}, view, env.deps, env.cfg)

	err := s.Join(context.Background())
	assert.ErrorIs(t, err, domain.ErrJoinFailed)
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
	assert.Equal(t, domain.SessionLeft, s.State())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after a failed join")
	}

	assert.ErrorIs(t, s.Join(context.Background()), domain.ErrSessionNotIdle)
	_, err = s.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

type failingSubscribe struct {
	ports.ChannelTransport
}

func (f failingSubscribe) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) (ports.Subscription, error) {
	return nil, errors.New("channel unavailable")
}

func TestPartySession_FailedJoinRemovesParticipantRow(t *testing.T) {
	env := newSessionEnv(t)
	deps := env.deps
	deps.Transport = failingSubscribe{env.bus}

	s := NewPartySession(env.party.ID, "bob", &fakePlayer{}, &recordingView{}, deps, env.cfg)
	err := s.Join(context.Background())

	assert.ErrorIs(t, err, domain.ErrJoinFailed)
	assert.Equal(t, domain.SessionLeft, s.State())
	assert.Empty(t, env.participantIDs(t))
}

func TestPartySession_CreatorPushCorrectsFollower(t *testing.T) {
	env := newSessionEnv(t)
	alice, alicePlayer, _ := env.join(t, "alice")
	_, bobPlayer, bobView := env.join(t, "bob")

	alicePlayer.set(30, true)
	alice.Tick()

	assert.Eventually(t, func() bool {
		return bobPlayer.GetIsPlaying() && bobPlayer.GetCurrentTime() == 30
	}, waitFor, tick)

	snap := bobView.snapshot()
	assert.True(t, snap.party.IsPlaying)
	assert.Equal(t, 30.0, snap.party.CurrentTime)

	stats := env.metrics.GetPartyStats(env.party.ID)
	assert.Equal(t, int64(1), stats.Pushes)
	assert.Equal(t, int64(1), stats.DriftCorrections)
}

func TestPartySession_SmallDriftIsTolerated(t *testing.T) {
	env := newSessionEnv(t)
	alice, alicePlayer, _ := env.join(t, "alice")
	_, bobPlayer, bobView := env.join(t, "bob")
	bobPlayer.set(9, true)

	alicePlayer.set(10, true)
	alice.Tick()

	assert.Eventually(t, func() bool { return bobView.snapshot().party.IsPlaying }, waitFor, tick)
	assert.Zero(t, bobPlayer.seekCount())
}

func TestPartySession_FollowerTickNeverWrites(t *testing.T) {
	env := newSessionEnv(t)
	env.join(t, "alice")
	bob, bobPlayer, _ := env.join(t, "bob")

	bobPlayer.set(99, true)
	bob.Tick()
	_, err := bob.Snapshot(context.Background())
	require.NoError(t, err)

	party, err := env.parties.GetParty(context.Background(), env.party.ID)
	require.NoError(t, err)
	assert.False(t, party.IsPlaying)
	assert.Zero(t, env.metrics.GetPartyStats(env.party.ID).Pushes)
}

func TestPartySession_SyncNowForcesCorrection(t *testing.T) {
	env := newSessionEnv(t)
	env.join(t, "alice")
	bob, bobPlayer, _ := env.join(t, "bob")
	bobPlayer.set(1, false)

	require.NoError(t, bob.SyncNow())

	assert.Eventually(t, func() bool { return bobPlayer.seekCount() == 1 }, waitFor, tick)
	assert.Equal(t, 0.0, bobPlayer.GetCurrentTime())
}

func TestPartySession_ChatReachesEverySession(t *testing.T) {
	env := newSessionEnv(t)
	_, _, aliceView := env.join(t, "alice")
	bob, _, bobView := env.join(t, "bob")

	msg, err := bob.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSenderName, msg.Username)

	for _, view := range []*recordingView{aliceView, bobView} {
		assert.Eventually(t, func() bool {
			added := view.snapshot().added
			return len(added) == 1 && added[0].ID == msg.ID
		}, waitFor, tick)
	}
}

func TestPartySession_ReactionShownAndExpired(t *testing.T) {
	env := newSessionEnv(t)
	_, _, aliceView := env.join(t, "alice")
	bob, _, bobView := env.join(t, "bob")

	require.NoError(t, bob.SendReaction(context.Background(), domain.ReactionPayload{Emoji: "🔥", OriginX: 40}))

	for _, view := range []*recordingView{bobView, aliceView} {
		assert.Eventually(t, func() bool {
			snap := view.snapshot()
			return len(snap.shown) == 1 && len(snap.expired) == 1 && snap.shown[0].ID == snap.expired[0]
		}, waitFor, tick)
	}

	// the sender sees its own reaction exactly once
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, bobView.snapshot().shown, 1)
}

func TestPartySession_SendReactionRejectsInvalid(t *testing.T) {
	env := newSessionEnv(t)
	bob, _, bobView := env.join(t, "bob")

	err := bob.SendReaction(context.Background(), domain.ReactionPayload{Emoji: "👍", OriginX: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidReaction)
	assert.Empty(t, bobView.snapshot().shown)
}

func TestPartySession_HostPresenceFollowsCreator(t *testing.T) {
	env := newSessionEnv(t)
	_, _, bobView := env.join(t, "bob")
	assert.Equal(t, []bool{false}, bobView.snapshot().hostPresence)

	alice, _, _ := env.join(t, "alice")
	assert.Eventually(t, func() bool {
		p := bobView.snapshot().hostPresence
		return len(p) == 2 && p[1]
	}, waitFor, tick)

	alice.Leave(context.Background())
	assert.Eventually(t, func() bool {
		p := bobView.snapshot().hostPresence
		return len(p) == 3 && !p[2]
	}, waitFor, tick)
}

func TestPartySession_LeaveStopsCallbacks(t *testing.T) {
	env := newSessionEnv(t)
	alice, alicePlayer, aliceView := env.join(t, "alice")
	bob, _, bobView := env.join(t, "bob")
	assert.Eventually(t, func() bool { return len(aliceView.snapshot().participants) == 2 }, waitFor, tick)

	bob.Leave(context.Background())
	assert.Equal(t, domain.SessionLeft, bob.State())
	<-bob.Done()

	assert.Eventually(t, func() bool { return len(aliceView.snapshot().participants) == 1 }, waitFor, tick)
	assert.Equal(t, []domain.UserID{"alice"}, env.participantIDs(t))

	calls := bobView.snapshot().calls
	alicePlayer.set(50, true)
	alice.Tick()
	_, err := alice.SendMessage(context.Background(), "anyone?")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(aliceView.snapshot().added) == 1 }, waitFor, tick)

	assert.Equal(t, calls, bobView.snapshot().calls, "no callbacks after leave")

	bob.Leave(context.Background())
	assert.ErrorIs(t, bob.SyncNow(), domain.ErrSessionClosed)
}

func TestPartySession_DisconnectRunsOneLeave(t *testing.T) {
	env := newSessionEnv(t)
	env.join(t, "alice")
	bob, _, bobView := env.join(t, "bob")

	bob.Disconnect(errors.New("socket closed"))
	bob.Disconnect(errors.New("again"))

	select {
	case <-bob.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not reach Left")
	}

	states := bobView.snapshot().states
	assert.Equal(t, []domain.SessionState{
		domain.SessionJoining, domain.SessionActive, domain.SessionDisconnected, domain.SessionLeft,
	}, states)
	assert.Equal(t, []domain.UserID{"alice"}, env.participantIDs(t))
	assert.Equal(t, 1, env.metrics.GetPartyStats(env.party.ID).ActiveSessions)
}

func TestPartySession_TransportLossDisconnects(t *testing.T) {
	env := newSessionEnv(t)
	bob, _, _ := env.join(t, "bob")

	require.NoError(t, env.bus.Close())

	select {
	case <-bob.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not leave after transport loss")
	}
	assert.Equal(t, domain.SessionLeft, bob.State())
}

func TestPartySession_Snapshot(t *testing.T) {
	env := newSessionEnv(t)
	alice, _, _ := env.join(t, "alice")
	require.NoError(t, alice.SendReaction(context.Background(), domain.ReactionPayload{Emoji: "⭐", OriginX: 5}))

	snap, err := alice.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, snap.State)
	assert.True(t, snap.IsCreator)
	assert.True(t, snap.HostPresent)
	assert.Len(t, snap.Participants, 1)

	alice.Leave(context.Background())
	_, err = alice.Snapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}
