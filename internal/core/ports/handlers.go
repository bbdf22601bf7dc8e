package ports

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	CreateParty(c *gin.Context)
	GetParty(c *gin.Context)
	UpdatePlayback(c *gin.Context)
	JoinParty(c *gin.Context)
	LeaveParty(c *gin.Context)
	ListParticipants(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	GetPartyStats(c *gin.Context)
}

type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}
