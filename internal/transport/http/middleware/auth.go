package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agentchat/internal/app"
	"agentchat/internal/model"
	"agentchat/internal/transport/http/response"
)

const ContextUserKey = "current_user"

// AuthBearer resolves the access token in the Authorization header to an
// active user and stores it on the context.
func AuthBearer(authService *app.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "Authorization header missing")
			return
		}

		user, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, app.ErrInactiveUser):
				response.Abort(c, http.StatusForbidden, "Inactive user")
			case errors.Is(err, app.ErrTokenExpired):
				response.Abort(c, http.StatusUnauthorized, "Token has expired")
			case errors.Is(err, app.ErrTokenRevoked):
				response.Abort(c, http.StatusUnauthorized, "Token has been revoked")
			case errors.Is(err, app.ErrInvalidUser):
				response.Abort(c, http.StatusUnauthorized, "Invalid user")
			case errors.Is(err, app.ErrTokenTypeMismatch), errors.Is(err, app.ErrTokenMalformed):
				response.Abort(c, http.StatusUnauthorized, "Could not validate credentials")
			default:
				_ = c.Error(err)
				response.Abort(c, http.StatusInternalServerError, response.MessageInternal)
			}
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
