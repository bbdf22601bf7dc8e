package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/services"
	"watchparty/pkg/config"
	apperrors "watchparty/pkg/errors"
	"watchparty/pkg/tracing"
	"watchparty/pkg/utils"
	"watchparty/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ConnectionRecorder receives socket-level metrics.
type ConnectionRecorder interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordWebSocketMessage(direction, msgType string)
}

type noopRecorder struct{}

func (noopRecorder) RecordConnectionOpened()               {}
func (noopRecorder) RecordConnectionClosed()               {}
func (noopRecorder) RecordWebSocketMessage(string, string) {}

type GatewayConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	TickInterval   time.Duration
	AllowedOrigins []string

	// zero disables the limit
	MessagesPerSecond float64
	MessageBurst      int
	MaxConnections    int
	MaxMessageSize    int64

	Session services.SessionConfig
}

// NewGatewayConfig maps the service configuration onto the gateway.
func NewGatewayConfig(cfg *config.Config) GatewayConfig {
	gc := GatewayConfig{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		TickInterval:   cfg.Sync.TickInterval,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		Session: services.SessionConfig{
			PushInterval:     cfg.Sync.PushInterval,
			DriftThreshold:   cfg.Sync.DriftThreshold,
			ReactionTTL:      cfg.Sync.ReactionTTL,
			HistoryLimit:     cfg.Sync.HistoryLimit,
			SyncOnJoin:       cfg.Sync.SyncOnJoin,
			OperationTimeout: cfg.Sync.OperationTimeout,
			InboxSize:        cfg.Sync.InboxSize,
			LeaveRetry:       services.DefaultSessionConfig().LeaveRetry,
		},
	}
	if cfg.RateLimiting.Enabled {
		gc.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		gc.MessageBurst = cfg.RateLimiting.WebSocket.Burst
		gc.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	return gc
}

// Gateway hosts one PartySession per WebSocket connection. The browser's
// player is driven through a RemotePlayer and rendered through a
// ConnectionView.
type Gateway struct {
	cfg      GatewayConfig
	deps     services.SessionDeps
	recorder ConnectionRecorder
	upgrader websocket.Upgrader
	slots    *semaphore.Weighted

	mu      sync.RWMutex
	clients map[string]*client

	logger *zap.SugaredLogger
}

type client struct {
	conn    *websocket.Conn
	session *services.PartySession
	player  *RemotePlayer
	view    *ConnectionView
	limiter *rate.Limiter

	closeOnce sync.Once
	quit      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
	})
}

func NewGateway(cfg GatewayConfig, deps services.SessionDeps, recorder ConnectionRecorder) *Gateway {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	g := &Gateway{
		cfg:      cfg,
		deps:     deps,
		recorder: recorder,
		clients:  make(map[string]*client),
		logger:   deps.Logger.With("component", "gateway"),
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin:     g.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if cfg.MaxConnections > 0 {
		g.slots = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket serves GET /ws?party_id=...&user_id=...
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	partyID := r.URL.Query().Get("party_id")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if err := validation.ValidatePartyID(partyID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateUserID(userID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if g.slots != nil {
		if !g.slots.TryAcquire(1) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
		defer g.slots.Release(1)
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := g.newClient(conn, domain.PartyID(partyID), domain.UserID(userID))
	logger := g.logger.With("party_id", partyID, "user_id", userID, "session_id", c.session.ID())

	g.recorder.RecordConnectionOpened()
	defer g.recorder.RecordConnectionClosed()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writePump(c, logger)
	}()

	if err := c.session.Join(r.Context()); err != nil {
		logger.Warnw("join failed", "error", err)
		g.sendError(c, err)
		c.view.Close()
		<-writerDone
		c.close()
		return
	}

	g.track(c)
	defer g.untrack(c)

	logger.Infow("viewer connected", "is_creator", c.session.IsCreator())

	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		g.tickLoop(c)
	}()

	readErr := g.readPump(c, logger)

	switch {
	case readErr == nil, websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Session.OperationTimeout*2)
		c.session.Leave(ctx)
		cancel()
	default:
		if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			logger.Infow("connection lost", "error", readErr)
		}
		c.session.Disconnect(readErr)
		<-c.session.Done()
	}

	c.view.Close()
	<-writerDone
	c.close()
	<-tickerDone

	logger.Infow("viewer disconnected")
}

func (g *Gateway) newClient(conn *websocket.Conn, partyID domain.PartyID, userID domain.UserID) *client {
	c := &client{
		conn: conn,
		quit: make(chan struct{}),
	}
	if g.cfg.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(g.cfg.MessagesPerSecond), g.cfg.MessageBurst)
	}

	buffer := g.cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	c.view = NewConnectionView(userID, buffer, c.close, g.logger)
	c.player = NewRemotePlayer(c.view)
	c.session = services.NewPartySession(partyID, userID, c.player, c.view, g.deps, g.cfg.Session)
	return c
}

// readPump returns nil when the viewer asked to leave.
func (g *Gateway) readPump(c *client, logger *zap.SugaredLogger) error {
	if g.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(g.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				g.sendError(c, apperrors.NewInvalidInputError("malformed message"))
				continue
			}
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
		g.recorder.RecordWebSocketMessage("in", msg.Type)

		if c.limiter != nil && !c.limiter.Allow() {
			g.sendError(c, domain.ErrRateLimited)
			continue
		}

		if msg.Type == TypeLeave {
			return nil
		}
		if err := g.handleMessage(c, msg); err != nil {
			logger.Debugw("error handling message", "type", msg.Type, "error", err)
			g.sendError(c, err)
		}
		if c.session.State() == domain.SessionLeft {
			return nil
		}
	}
}

func (g *Gateway) handleMessage(c *client, msg Message) (err error) {
	ctx, span := tracing.TraceWebSocketMessage(context.Background(), msg.Type,
		string(c.session.PartyID()), string(c.session.UserID()))
	defer func() { tracing.End(span, err) }()

	switch msg.Type {
	case TypeTick:
		var payload TickPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return apperrors.NewInvalidInputError("invalid tick payload")
		}
		if err := validation.ValidatePlaybackPosition(payload.CurrentTime); err != nil {
			return apperrors.NewInvalidInputError(err.Error())
		}
		c.player.Report(payload)
		c.session.Tick()
		return nil

	case TypeSyncNow:
		return c.session.SyncNow()

	case TypeChat:
		var payload ChatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return apperrors.NewInvalidInputError("invalid chat payload")
		}
		_, err := c.session.SendMessage(ctx, payload.Message)
		return err

	case TypeReaction:
		var payload ReactionRequest
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return apperrors.NewInvalidInputError("invalid reaction payload")
		}
		originX := utils.RandomOriginX()
		if payload.OriginX != nil {
			originX = *payload.OriginX
		}
		return c.session.SendReaction(ctx, domain.ReactionPayload{Emoji: payload.Emoji, OriginX: originX})

	case "":
		return apperrors.NewInvalidInputError("message type is required")
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// writePump owns every write to the socket, pings included.
func (g *Gateway) writePump(c *client, logger *zap.SugaredLogger) {
	pingTicker := time.NewTicker(g.cfg.PingInterval)
	defer pingTicker.Stop()

	out := c.view.Outbound()
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				logger.Debugw("write failed", "type", msg.msgType, "error", err)
				c.close()
				drain(out)
				return
			}
			g.recorder.RecordWebSocketMessage("out", msg.msgType)

		case <-pingTicker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debugw("error sending ping", "error", err)
				c.close()
				drain(out)
				return
			}
		}
	}
}

func drain(out <-chan outbound) {
	for range out {
	}
}

// tickLoop samples the remote player between reports so a creator whose
// browser reports rarely still pushes on schedule. It also flushes and
// closes the connection once the session ends on its own.
func (g *Gateway) tickLoop(c *client) {
	var tick <-chan time.Time
	if g.cfg.TickInterval > 0 {
		ticker := time.NewTicker(g.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.quit:
			return
		case <-c.session.Done():
			c.view.Close()
			return
		case <-tick:
			c.session.Tick()
		}
	}
}

func (g *Gateway) sendError(c *client, err error) {
	appErr := apperrors.FromDomain(err)
	c.view.sendError(string(appErr.Code), appErr.Message)
}

func (g *Gateway) track(c *client) {
	g.mu.Lock()
	g.clients[c.session.ID()] = c
	g.mu.Unlock()
}

func (g *Gateway) untrack(c *client) {
	g.mu.Lock()
	delete(g.clients, c.session.ID())
	g.mu.Unlock()
}

// ConnectionCount reports the number of joined viewers.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Shutdown leaves every hosted session and closes its connection.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.RLock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.RUnlock()

	var group errgroup.Group
	for _, c := range clients {
		c := c
		group.Go(func() error {
			c.session.Leave(ctx)
			c.close()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	g.logger.Infow("gateway shut down", "sessions", len(clients))
	return ctx.Err()
}

func (g *Gateway) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": g.ConnectionCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
