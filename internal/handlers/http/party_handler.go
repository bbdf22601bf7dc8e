package http

import (
	"net/http"
	"strconv"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/middleware"
	apperrors "watchparty/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

type PartyHandler struct {
	parties ports.PartyService
	chat    ports.ChatService
}

var _ ports.HTTPHandler = (*PartyHandler)(nil)

func NewPartyHandler(parties ports.PartyService, chat ports.ChatService) *PartyHandler {
	return &PartyHandler{
		parties: parties,
		chat:    chat,
	}
}

// SetupRoutes mounts the party API. Every route needs a caller identity.
func (h *PartyHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1", middleware.RequireIdentity())
	{
		api.POST("/parties", h.CreateParty)
		api.GET("/parties/:id", h.GetParty)
		api.PUT("/parties/:id/playback", h.UpdatePlayback)
		api.POST("/parties/:id/participants", h.JoinParty)
		api.DELETE("/parties/:id/participants/me", h.LeaveParty)
		api.GET("/parties/:id/participants", h.ListParticipants)
		api.GET("/parties/:id/messages", h.ListMessages)
		api.POST("/parties/:id/messages", h.SendMessage)
		api.GET("/parties/:id/stats", h.GetPartyStats)
	}
}

func (h *PartyHandler) CreateParty(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	var req struct {
		RoomName    string `json:"room_name" binding:"required"`
		ContentID   string `json:"content_id" binding:"required"`
		ContentType string `json:"content_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	party, err := h.parties.CreateParty(c.Request.Context(), userID, req.RoomName, req.ContentID, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"party": party,
	})
}

func (h *PartyHandler) GetParty(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	party, err := h.parties.GetParty(c.Request.Context(), partyID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party":      party,
		"is_creator": party.IsCreator(userID),
	})
}

func (h *PartyHandler) UpdatePlayback(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	var req struct {
		CurrentTime *float64 `json:"current_time" binding:"required"`
		IsPlaying   *bool    `json:"is_playing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	party, err := h.parties.UpdatePlayback(c.Request.Context(), partyID(c), userID, domain.PlaybackState{
		CurrentTime: *req.CurrentTime,
		IsPlaying:   *req.IsPlaying,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party": party,
	})
}

func (h *PartyHandler) JoinParty(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	if err := h.parties.AddParticipant(c.Request.Context(), partyID(c), userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party_id": partyID(c),
		"user_id":  userID,
		"status":   "joined",
	})
}

func (h *PartyHandler) LeaveParty(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	if err := h.parties.RemoveParticipant(c.Request.Context(), partyID(c), userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "left",
	})
}

func (h *PartyHandler) ListParticipants(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	views, err := h.parties.ListParticipants(c.Request.Context(), partyID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	type participant struct {
		domain.ParticipantView
		IsYou bool `json:"is_you"`
	}
	out := make([]participant, len(views))
	for i, v := range views {
		out[i] = participant{ParticipantView: v, IsYou: v.UserID == userID}
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": out,
		"count":        len(out),
	})
}

func (h *PartyHandler) ListMessages(c *gin.Context) {
	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMessageLimit {
			_ = c.Error(apperrors.NewInvalidInputError("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	messages, err := h.parties.ListMessages(c.Request.Context(), partyID(c), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
	})
}

func (h *PartyHandler) SendMessage(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)

	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), partyID(c), userID, req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": msg,
	})
}

func (h *PartyHandler) GetPartyStats(c *gin.Context) {
	stats, err := h.parties.GetPartyStats(c.Request.Context(), partyID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
	})
}

func partyID(c *gin.Context) domain.PartyID {
	return domain.PartyID(c.Param("id"))
}
