package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/cache"
	"watchparty/pkg/utils"
	"watchparty/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const senderLimiterTTL = 10 * time.Minute

type ChatConfig struct {
	MaxMessageLength  int
	MessagesPerSecond float64
	Burst             int
}

type chatService struct {
	parties   ports.PartyRepository
	messages  ports.ChatRepository
	profiles  ports.ProfileProvider
	transport ports.ChannelTransport
	metrics   ports.SessionMetrics
	cfg       ChatConfig
	logger    *zap.SugaredLogger

	limitersMu sync.Mutex
	limiters   *cache.Cache[*rate.Limiter]
}

func NewChatService(
	parties ports.PartyRepository,
	messages ports.ChatRepository,
	profiles ports.ProfileProvider,
	transport ports.ChannelTransport,
	metrics ports.SessionMetrics,
	cfg ChatConfig,
	logger *zap.SugaredLogger,
) ports.ChatService {
	return &chatService{
		parties:   parties,
		messages:  messages,
		profiles:  profiles,
		transport: transport,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		limiters:  cache.New[*rate.Limiter](senderLimiterTTL),
	}
}

// SendMessage persists a chat message. Delivery to every session, the
// sender's included, happens through the insert notification.
func (s *chatService) SendMessage(ctx context.Context, partyID domain.PartyID, userID domain.UserID, text string) (*domain.ChatMessage, error) {
	text = utils.SanitizeString(text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return nil, fmt.Errorf("%w: max %d characters", domain.ErrMessageTooLong, s.cfg.MaxMessageLength)
	}
	if !s.allow(userID) {
		return nil, domain.ErrRateLimited
	}
	if _, err := s.parties.GetByID(ctx, partyID); err != nil {
		return nil, err
	}

	message := &domain.ChatMessage{
		PartyID:  partyID,
		UserID:   userID,
		Username: domain.DefaultSenderName,
		Text:     text,
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warnw("sender profile lookup failed",
			"party_id", partyID,
			"user_id", userID,
			"error", err,
		)
	} else if profile != nil {
		if profile.Username != "" {
			message.Username = profile.Username
		}
		message.AvatarURL = profile.AvatarURL
	}

	saved, err := s.messages.Insert(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	s.metrics.RecordChatMessage(partyID)
	return saved, nil
}

// BroadcastReaction sends a reaction to every other subscriber of sub's
// topic. Nothing is persisted.
func (s *chatService) BroadcastReaction(ctx context.Context, sub ports.Subscription, payload domain.ReactionPayload) error {
	if err := ValidateReaction(payload); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal reaction: %w", err)
	}
	if err := s.transport.Broadcast(ctx, sub, domain.ReactionEvent, data); err != nil {
		return fmt.Errorf("failed to broadcast reaction: %w", err)
	}

	if partyID, ok := domain.PartyIDFromTopic(sub.Topic()); ok {
		s.metrics.RecordReaction(partyID)
	}
	return nil
}

func (s *chatService) allow(userID domain.UserID) bool {
	if s.cfg.MessagesPerSecond <= 0 {
		return true
	}

	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	key := string(userID)
	limiter, ok := s.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}
	// refresh the TTL on every use
	s.limiters.Set(key, limiter)
	return limiter.Allow()
}

// ValidateReaction checks the emoji palette and the horizontal origin.
func ValidateReaction(payload domain.ReactionPayload) error {
	if !domain.IsReactionEmoji(payload.Emoji) {
		return fmt.Errorf("%w: emoji %q is not in the palette", domain.ErrInvalidReaction, payload.Emoji)
	}
	if err := validation.ValidateOriginX(payload.OriginX); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidReaction, err)
	}
	return nil
}
