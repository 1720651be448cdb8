package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentchat/internal/app"
	"agentchat/internal/model"
	"agentchat/internal/transport/http/response"
)

type ListSessionsQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type SearchSessionsQuery struct {
	Query string `form:"query" binding:"required,notblank,max=255"`
}

type Pagination struct {
	CurrentPage     int     `json:"current_page"`
	TotalPages      int     `json:"total_pages"`
	TotalRecords    int64   `json:"total_records"`
	RecordPerPage   int     `json:"record_per_page"`
	PreviousPageURL *string `json:"previous_page_url"`
	NextPageURL     *string `json:"next_page_url"`
}

type SessionListResponse struct {
	Sessions   []model.ChatSession `json:"sessions"`
	Pagination Pagination          `json:"pagination"`
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	h.listSessions(c, user.ID)
}

func (h *ChatHandler) listSessions(c *gin.Context, userID uint) {
	var q ListSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindingError(c, err)
		return
	}

	page, err := h.chatService.ListSessions(c.Request.Context(), userID, q.Page, q.Limit)
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, SessionListResponse{
		Sessions:   nonNil(page.Sessions),
		Pagination: paginate(c.Request.URL.Path, page),
	})
}

func (h *ChatHandler) SearchSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var q SearchSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindingError(c, err)
		return
	}

	sessions, err := h.chatService.SearchSessions(c.Request.Context(), user, q.Query)
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, nonNil(sessions))
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	messages, err := h.chatService.GetMessages(c.Request.Context(), user, c.Param("session_id"))
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, nonNil(messages))
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteSession(c.Request.Context(), user, c.Param("session_id")); err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, "Session deleted successfully", nil)
}

func (h *ChatHandler) ShareSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.chatService.ShareSession(c.Request.Context(), user, c.Param("session_id")); err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, "Session shared successfully", nil)
}

// GetSharedSession is public: no caller identity is required.
func (h *ChatHandler) GetSharedSession(c *gin.Context) {
	messages, err := h.chatService.GetSharedMessages(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			response.Error(c, http.StatusNotFound, "Session not found or you don't have access")
			return
		}
		chatError(c, err)
		return
	}
	response.OK(c, "Session retrieved successfully", nonNil(messages))
}

// ServiceListSessions lists any user's sessions for a trusted caller.
func (h *ChatHandler) ServiceListSessions(c *gin.Context) {
	var uri struct {
		UserID uint `uri:"user_id" binding:"required,gt=0"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		bindingError(c, err)
		return
	}
	h.listSessions(c, uri.UserID)
}

func (h *ChatHandler) ServiceGetSession(c *gin.Context) {
	messages, err := h.chatService.GetSessionMessages(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		chatError(c, err)
		return
	}
	response.OK(c, response.MessageSuccess, nonNil(messages))
}

func paginate(path string, page *app.SessionPage) Pagination {
	p := Pagination{
		CurrentPage:   page.Page,
		TotalPages:    page.TotalPages,
		TotalRecords:  page.TotalRecords,
		RecordPerPage: page.Limit,
	}
	if page.Page > 1 {
		prev := fmt.Sprintf("%s?page=%d&limit=%d", path, page.Page-1, page.Limit)
		p.PreviousPageURL = &prev
	}
	if page.Page < page.TotalPages {
		next := fmt.Sprintf("%s?page=%d&limit=%d", path, page.Page+1, page.Limit)
		p.NextPageURL = &next
	}
	return p
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
