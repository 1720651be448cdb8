package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"agentchat/internal/app"
	"agentchat/internal/model"
	"agentchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type ChatInvokeRequest struct {
	SessionID string `json:"session_id" binding:"omitempty,max=100"`
	Query     string `json:"query" binding:"required,notblank,max=500"`
	Stream    bool   `json:"stream"`
}

type ChatTitleRequest struct {
	SessionID   string `json:"session_id" binding:"required,notblank,max=100"`
	UserMessage string `json:"user_message" binding:"required,notblank"`
}

type EditTitleRequest struct {
	SessionID string `json:"session_id" binding:"required,notblank,max=100"`
	Title     string `json:"title" binding:"required,notblank,max=255"`
}

type ResubmitRequest struct {
	SessionID string `json:"session_id" binding:"required,notblank,max=100"`
	MessageID uint   `json:"message_id" binding:"required,gt=0"`
	Query     string `json:"query" binding:"required,notblank,max=500"`
	Stream    bool   `json:"stream"`
}

type FeedbackRequest struct {
	ID               uint `json:"id" binding:"required,gt=0"`
	PositiveFeedback bool `json:"positive_feedback"`
	NegativeFeedback bool `json:"negative_feedback"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Invoke(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req ChatInvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	in := app.ChatInput{User: user, SessionID: req.SessionID, Query: req.Query}
	if req.Stream {
		stream := newEventStream(c)
		msg, err := h.chatService.StreamChat(c.Request.Context(), in, stream.chunk)
		h.finishStream(c, stream, msg, err)
		return
	}

	msg, err := h.chatService.Chat(c.Request.Context(), in)
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, msg)
}

func (h *ChatHandler) Resubmit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	in := app.ResubmitInput{User: user, SessionID: req.SessionID, MessageID: req.MessageID, Query: req.Query}
	if req.Stream {
		stream := newEventStream(c)
		msg, err := h.chatService.StreamResubmit(c.Request.Context(), in, stream.chunk)
		h.finishStream(c, stream, msg, err)
		return
	}

	msg, err := h.chatService.Resubmit(c.Request.Context(), in)
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, msg)
}

// finishStream closes an SSE exchange. Errors raised before the first event
// are still answered with the JSON envelope.
func (h *ChatHandler) finishStream(c *gin.Context, stream *eventStream, msg *model.ChatMessage, err error) {
	switch {
	case err == nil:
		_ = stream.send("done", msg)
	case errors.Is(err, app.ErrStreamAborted):
		// client is gone
	case errors.Is(err, app.ErrUpstream):
		_ = c.Error(err)
		stream.fail(app.ApologyMessage)
	case stream.started:
		_ = c.Error(err)
		stream.fail(response.MessageInternal)
	default:
		chatError(c, err)
	}
}

func (h *ChatHandler) GenerateTitle(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req ChatTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	title, err := h.chatService.GenerateTitle(c.Request.Context(), user, req.SessionID, req.UserMessage)
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, gin.H{"title": title})
}

func (h *ChatHandler) EditTitle(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req EditTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	session, err := h.chatService.EditTitle(c.Request.Context(), user, req.SessionID, req.Title)
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, "Title updated successfully", session)
}

func (h *ChatHandler) Feedback(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	if err := h.chatService.SubmitFeedback(c.Request.Context(), user, req.ID, req.PositiveFeedback, req.NegativeFeedback); err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, "Feedback submitted successfully", nil)
}
