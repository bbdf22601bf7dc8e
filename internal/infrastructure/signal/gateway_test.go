package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/distributed"
	"watchparty/internal/infrastructure/repositories/changefeed"
	"watchparty/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	server  *httptest.Server
	gateway *Gateway
	parties ports.PartyService
	party   *domain.Party
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()

	bus := distributed.NewLocalBus(64, logger)
	partyRepo := changefeed.NewPartyRepository(memory.NewMemoryPartyRepository(), bus, logger)
	participantRepo := changefeed.NewParticipantRepository(memory.NewMemoryParticipantRepository(), bus, logger)
	chatRepo := changefeed.NewChatRepository(memory.NewMemoryChatRepository(), bus, logger)
	profiles := memory.NewMemoryProfileProvider(domain.Profile{UserID: "alice", Username: "Alice"})

	metrics := services.NewMetricsService()
	presence := services.NewPresenceTracker(participantRepo, profiles, 4, logger)
	parties := services.NewPartyService(partyRepo, participantRepo, chatRepo, presence, metrics)
	chat := services.NewChatService(partyRepo, chatRepo, profiles, bus, metrics, services.ChatConfig{
		MaxMessageLength:  500,
		MessagesPerSecond: 50,
		Burst:             50,
	}, logger)

	party, err := parties.CreateParty(context.Background(), "alice", "Movie night", "tt0111161", "movie")
	require.NoError(t, err)

	sessionCfg := services.DefaultSessionConfig()
	sessionCfg.OperationTimeout = 2 * time.Second

	gw := NewGateway(GatewayConfig{
		PingInterval:   time.Second,
		PongTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		SendBuffer:     64,
		AllowedOrigins: []string{"*"},
		Session:        sessionCfg,
	}, services.SessionDeps{
		Parties:   parties,
		Chat:      chat,
		Transport: bus,
		Metrics:   metrics,
		Logger:    logger,
	}, nil)

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		server.Close()
		_ = bus.Close()
	})

	return &testEnv{server: server, gateway: gw, parties: parties, party: party}
}

func (e *testEnv) wsURL(partyID domain.PartyID, userID string) string {
	q := url.Values{}
	q.Set("party_id", string(partyID))
	q.Set("user_id", userID)
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?" + q.Encode()
}

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(e.party.ID, userID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	readUntil(t, conn, TypeState, func(raw json.RawMessage) bool {
		var p StatePayload
		return json.Unmarshal(raw, &p) == nil && p.State == domain.SessionActive
	})
	return conn
}

// readUntil reads messages until one of msgType satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func participantCount(n int) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var p ParticipantsPayload
		return json.Unmarshal(raw, &p) == nil && len(p.Participants) == n
	}
}

func TestGateway_RejectsMissingIdentity(t *testing.T) {
	env := newTestEnv(t)

	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?party_id=" + string(env.party.ID)
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_RejectsDisallowedOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.cfg.AllowedOrigins = []string{"https://watch.example.com"}

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(env.party.ID, "bob"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGateway_JoinUnknownPartyReportsError(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL("missing", "bob"), nil)
	require.NoError(t, err)
	defer conn.Close()

	raw := readUntil(t, conn, TypeError, nil)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "PARTY_NOT_FOUND", payload.Code)

	views, err := env.parties.ListParticipants(context.Background(), env.party.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestGateway_ParticipantsMarkLocalViewer(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	env.dial(t, "bob")

	raw := readUntil(t, alice, TypeParticipants, participantCount(2))
	var payload ParticipantsPayload
	require.NoError(t, json.Unmarshal(raw, &payload))

	for _, p := range payload.Participants {
		assert.Equal(t, p.UserID == "alice", p.IsYou, "user %s", p.UserID)
		assert.Equal(t, p.UserID == "alice", p.IsCreator, "user %s", p.UserID)
	}
}

func TestGateway_CreatorTickCorrectsFollower(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, alice, TypeTick, TickPayload{CurrentTime: 30, IsPlaying: true})

	raw := readUntil(t, bob, TypeSeek, nil)
	var seek SeekPayload
	require.NoError(t, json.Unmarshal(raw, &seek))
	assert.InDelta(t, 30, seek.Position, 0.5)

	raw = readUntil(t, bob, TypeSetPlaying, nil)
	var playing SetPlayingPayload
	require.NoError(t, json.Unmarshal(raw, &playing))
	assert.True(t, playing.Playing)

	party, err := env.parties.GetParty(context.Background(), env.party.ID)
	require.NoError(t, err)
	assert.True(t, party.IsPlaying)
}

func TestGateway_FollowerTickDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, bob, TypeTick, TickPayload{CurrentTime: 99, IsPlaying: true})
	send(t, bob, TypeChat, ChatPayload{Message: "sync"})
	readUntil(t, bob, TypeChatMessage, nil)

	party, err := env.parties.GetParty(context.Background(), env.party.ID)
	require.NoError(t, err)
	assert.False(t, party.IsPlaying)
	assert.Zero(t, party.CurrentTime)
}

func TestGateway_ChatReachesEverySession(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, bob, TypeChat, ChatPayload{Message: "hello there"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		raw := readUntil(t, conn, TypeChatMessage, nil)
		var payload ChatMessagePayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		assert.Equal(t, "hello there", payload.Message.Text)
		assert.Equal(t, domain.UserID("bob"), payload.Message.UserID)
		assert.Equal(t, 0, payload.Position)
	}
}

func TestGateway_EmptyChatReturnsError(t *testing.T) {
	env := newTestEnv(t)
	bob := env.dial(t, "bob")

	send(t, bob, TypeChat, ChatPayload{Message: "   "})

	raw := readUntil(t, bob, TypeError, nil)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "INVALID_INPUT", payload.Code)
}

func TestGateway_ReactionWithoutOriginGetsOne(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, bob, TypeReaction, map[string]string{"emoji": "🔥"})

	for _, conn := range []*websocket.Conn{bob, alice} {
		raw := readUntil(t, conn, TypeReaction, nil)
		var payload ReactionPayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		assert.Equal(t, "🔥", payload.Reaction.Emoji)
		assert.GreaterOrEqual(t, payload.Reaction.OriginX, 0.0)
		assert.LessOrEqual(t, payload.Reaction.OriginX, 100.0)
	}
}

func TestGateway_UnknownMessageType(t *testing.T) {
	env := newTestEnv(t)
	bob := env.dial(t, "bob")

	send(t, bob, "offer", map[string]string{"sdp": "v=0"})

	raw := readUntil(t, bob, TypeError, nil)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Contains(t, payload.Message, "unknown message type")
}

func TestGateway_LeaveRemovesParticipant(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	readUntil(t, alice, TypeParticipants, participantCount(2))

	send(t, bob, TypeLeave, nil)

	readUntil(t, bob, TypeState, func(raw json.RawMessage) bool {
		var p StatePayload
		return json.Unmarshal(raw, &p) == nil && p.State == domain.SessionLeft
	})
	readUntil(t, alice, TypeParticipants, participantCount(1))
}

func TestGateway_DroppedConnectionRunsDisconnectPath(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	readUntil(t, alice, TypeParticipants, participantCount(2))

	// no close frame
	require.NoError(t, bob.UnderlyingConn().Close())

	readUntil(t, alice, TypeParticipants, participantCount(1))
	assert.Eventually(t, func() bool {
		return env.gateway.ConnectionCount() == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGateway_ShutdownLeavesSessions(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "alice")
	env.dial(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.gateway.Shutdown(ctx))

	assert.Eventually(t, func() bool {
		views, err := env.parties.ListParticipants(context.Background(), env.party.ID)
		return err == nil && len(views) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGatewayConfig_RateLimitingDisabled(t *testing.T) {
	gw := NewGateway(GatewayConfig{}, services.SessionDeps{Logger: zap.NewNop().Sugar()}, nil)
	assert.Nil(t, gw.slots)

	c := gw.newClient(nil, "p1", "u1")
	assert.Nil(t, c.limiter)
	assert.Equal(t, 64, cap(c.view.send))
}
