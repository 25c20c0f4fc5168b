package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

const (
	maxTitleLength      = 200
	defaultMessageLimit = 200
	maxMessageLimit     = 1000
)

// ConversationHandler serves owner-scoped chat history.
type ConversationHandler struct {
	Repo repository.ConversationRepository
}

func NewConversationHandler(repo repository.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{Repo: repo}
}

func (h *ConversationHandler) List(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	archived := queryBool(c, "archived")
	convs, err := h.Repo.List(c.Request.Context(), cl.UserID(), archived != nil && *archived,
		queryPositive(c, "limit", defaultListLimit, maxListLimit), queryInt(c, "offset", 0, 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *ConversationHandler) Create(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Title string  `json:"title"`
		Model *string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid conversation payload.")
		return
	}
	title, ok := normalizeTitle(req.Title)
	if !ok {
		badRequest(c, "title must be at most 200 characters.")
		return
	}
	if title == "" {
		title = "New conversation"
	}
	conv, err := h.Repo.Create(c.Request.Context(), cl.UserID(), title, req.Model)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	conv, err := h.Repo.Get(c.Request.Context(), cl.UserID(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Update(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Title    *string `json:"title"`
		Archived *bool   `json:"archived"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid conversation payload.")
		return
	}
	update := domain.ConversationUpdate{Archived: req.Archived}
	if req.Title != nil {
		title, ok := normalizeTitle(*req.Title)
		if !ok || title == "" {
			badRequest(c, "title must be between 1 and 200 characters.")
			return
		}
		update.Title = &title
	}
	if update.Title == nil && update.Archived == nil {
		badRequest(c, "Nothing to update.")
		return
	}
	conv, err := h.Repo.Update(c.Request.Context(), cl.UserID(), c.Param("id"), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	if err := h.Repo.Delete(c.Request.Context(), cl.UserID(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	conv, err := h.Repo.Get(c.Request.Context(), cl.UserID(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.Repo.Messages(c.Request.Context(), conv.ID, queryPositive(c, "limit", defaultMessageLimit, maxMessageLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Role    string  `json:"role" binding:"required,oneof=user assistant system"`
		Content string  `json:"content" binding:"required"`
		Model   *string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role and content are required.")
		return
	}
	conv, err := h.Repo.Get(c.Request.Context(), cl.UserID(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	msg, err := h.Repo.AppendMessage(c.Request.Context(), conv.ID, req.Role, req.Content, req.Model)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func normalizeTitle(raw string) (string, bool) {
	title := strings.TrimSpace(raw)
	return title, utf8.RuneCountInString(title) <= maxTitleLength
}
