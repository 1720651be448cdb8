package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agentchat/internal/app"
	"agentchat/internal/transport/http/response"
)

// RequireAPIKey guards service routes. The key travels in the Authorization
// header, with or without a Bearer prefix.
func RequireAPIKey(keys *app.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			response.Abort(c, http.StatusUnauthorized, "Authorization header missing")
			return
		}
		key := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

		if err := keys.Verify(c.Request.Context(), key); err != nil {
			if errors.Is(err, app.ErrInvalidAPIKey) {
				response.Abort(c, http.StatusForbidden, "Invalid API Key")
				return
			}
			_ = c.Error(err)
			response.Abort(c, http.StatusInternalServerError, response.MessageInternal)
			return
		}
		c.Next()
	}
}
