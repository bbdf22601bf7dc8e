package middleware

import (
	"net/http"

	"watchparty/internal/core/domain"
	"watchparty/pkg/errors"
	"watchparty/pkg/logger"
	"watchparty/pkg/validation"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the caller identity set by the upstream auth proxy.
	UserIDHeader = "X-User-ID"

	userIDContextKey = "user_id"
)

// IdentityMiddleware reads the caller's user ID from UserIDHeader, or from the
// user_id query parameter for WebSocket upgrades that cannot set headers.
// Requests without an identity pass through anonymous.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			raw = c.Query("user_id")
		}
		if raw == "" {
			c.Next()
			return
		}

		if err := validation.ValidateUserID(raw); err != nil {
			appErr := errors.NewUnauthorizedError(err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}

		c.Set(userIDContextKey, domain.UserID(raw))
		c.Request = c.Request.WithContext(logger.WithValue(c.Request.Context(), logger.UserIDKey, raw))
		c.Next()
	}
}

// RequireIdentity rejects anonymous requests.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserIDFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(errors.ErrCodeUnauthorized),
				"message": "user identity required",
			})
			return
		}
		c.Next()
	}
}

func UserIDFrom(c *gin.Context) (domain.UserID, bool) {
	v, exists := c.Get(userIDContextKey)
	if !exists {
		return "", false
	}
	userID, ok := v.(domain.UserID)
	return userID, ok && userID != ""
}
