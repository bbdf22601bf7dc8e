package signal

import (
	"sync"
	"time"

	"watchparty/internal/core/domain"

	"go.uber.org/zap"
)

// ConnectionView renders session updates onto one socket. It never blocks the
// session loop: when the client cannot keep up, the connection is dropped and
// the disconnect path takes over.
type ConnectionView struct {
	userID domain.UserID
	send   chan outbound
	logger *zap.SugaredLogger

	// overflow is called once when the send buffer is full.
	overflow     func()
	overflowOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func NewConnectionView(userID domain.UserID, buffer int, overflow func(), logger *zap.SugaredLogger) *ConnectionView {
	return &ConnectionView{
		userID:   userID,
		send:     make(chan outbound, buffer),
		overflow: overflow,
		logger:   logger,
	}
}

// Outbound is drained by the write pump.
func (v *ConnectionView) Outbound() <-chan outbound {
	return v.send
}

// Close stops accepting messages; queued ones are still delivered.
func (v *ConnectionView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.send)
	}
}

func (v *ConnectionView) push(msgType string, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		v.logger.Errorw("failed to encode outbound message", "type", msgType, "error", err)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	select {
	case v.send <- outbound{msgType: msgType, data: data, queued: time.Now()}:
	default:
		v.logger.Warnw("client too slow, dropping connection", "type", msgType)
		v.overflowOnce.Do(func() {
			if v.overflow != nil {
				go v.overflow()
			}
		})
	}
}

func (v *ConnectionView) sendCommand(msgType string, payload interface{}) {
	v.push(msgType, payload)
}

func (v *ConnectionView) sendError(code, message string) {
	v.push(TypeError, ErrorPayload{Code: code, Message: message})
}

func (v *ConnectionView) StateChanged(state domain.SessionState) {
	v.push(TypeState, StatePayload{State: state})
}

func (v *ConnectionView) PartyChanged(party domain.Party) {
	v.push(TypeParty, PartyPayload{Party: party, IsCreator: party.CreatorID == v.userID})
}

func (v *ConnectionView) ParticipantsChanged(participants []domain.ParticipantView) {
	out := make([]ParticipantPayload, len(participants))
	for i, p := range participants {
		out[i] = ParticipantPayload{ParticipantView: p, IsYou: p.UserID == v.userID}
	}
	v.push(TypeParticipants, ParticipantsPayload{Participants: out})
}

func (v *ConnectionView) HostPresenceChanged(present bool) {
	v.push(TypeHostPresence, HostPresencePayload{Present: present})
}

func (v *ConnectionView) ChatHistory(messages []domain.ChatMessage) {
	v.push(TypeChatHistory, ChatHistoryPayload{Messages: messages})
}

func (v *ConnectionView) ChatMessageAdded(message domain.ChatMessage, position int) {
	v.push(TypeChatMessage, ChatMessagePayload{Message: message, Position: position})
}

func (v *ConnectionView) ReactionShown(reaction domain.Reaction) {
	v.push(TypeReaction, ReactionPayload{Reaction: reaction})
}

func (v *ConnectionView) ReactionExpired(id domain.ReactionID) {
	v.push(TypeReactionExpired, ReactionExpiredPayload{ID: id})
}
