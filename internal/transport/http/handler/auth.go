package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentchat/internal/app"
	"agentchat/internal/model"
	"agentchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required,min=3,max=15"`
	Password string `json:"password" binding:"required,min=4,max=18"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,min=3,max=1024"`
}

type ResetPasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,max=18"`
	NewPassword     string `json:"new_password" binding:"required,min=6,max=18"`
}

type userResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	IsActive bool   `json:"is_active"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusUnprocessableEntity, "Invalid request payload")
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, app.ErrInactiveUser):
			response.Error(c, http.StatusForbidden, "Inactive user")
		default:
			_ = c.Error(err)
			response.Internal(c)
		}
		return
	}

	response.OK(c, response.MessageSuccess, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          toUserResponse(result.User),
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	access, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		tokenError(c, err)
		return
	}

	response.OK(c, response.MessageSuccess, gin.H{
		"access_token":  access,
		"refresh_token": req.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		tokenError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, nil)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, app.ErrPasswordMismatch):
			response.Error(c, http.StatusBadRequest, "Current password did not match")
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusUnprocessableEntity, "Invalid request payload")
		default:
			_ = c.Error(err)
			response.Internal(c)
		}
		return
	}
	response.OK(c, response.MessageSuccess, nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	response.OK(c, response.MessageSuccess, toUserResponse(user))
}

func tokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrTokenExpired):
		response.Error(c, http.StatusUnauthorized, "Token has expired")
	case errors.Is(err, app.ErrTokenRevoked):
		response.Error(c, http.StatusUnauthorized, "Token has been revoked")
	case errors.Is(err, app.ErrTokenTypeMismatch), errors.Is(err, app.ErrTokenMalformed):
		response.Error(c, http.StatusUnauthorized, "Could not validate credentials")
	default:
		_ = c.Error(err)
		response.Internal(c)
	}
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Phone:    user.Phone,
		IsActive: user.IsActive(),
	}
}
