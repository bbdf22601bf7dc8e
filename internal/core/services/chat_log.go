package services

import (
	"sort"

	"watchparty/internal/core/domain"
)

// ChatLog is a session's ordered view of a party's chat. Messages are kept in
// CreatedAt order; equal timestamps keep arrival order.
type ChatLog struct {
	messages []domain.ChatMessage
	seen     map[domain.MessageID]struct{}
}

func NewChatLog() *ChatLog {
	return &ChatLog{seen: make(map[domain.MessageID]struct{})}
}

// Insert places msg and returns its index. Duplicates (by ID) are ignored.
func (l *ChatLog) Insert(msg domain.ChatMessage) (int, bool) {
	if _, dup := l.seen[msg.ID]; dup {
		return -1, false
	}
	l.seen[msg.ID] = struct{}{}

	pos := sort.Search(len(l.messages), func(i int) bool {
		return l.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	l.messages = append(l.messages, domain.ChatMessage{})
	copy(l.messages[pos+1:], l.messages[pos:])
	l.messages[pos] = msg
	return pos, true
}

func (l *ChatLog) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *ChatLog) Len() int {
	return len(l.messages)
}
