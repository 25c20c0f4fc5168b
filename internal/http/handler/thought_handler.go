package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// ThoughtHandler serves owner-scoped notes.
type ThoughtHandler struct {
	Repo repository.ThoughtRepository
}

func NewThoughtHandler(repo repository.ThoughtRepository) *ThoughtHandler {
	return &ThoughtHandler{Repo: repo}
}

func (h *ThoughtHandler) List(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	thoughts, err := h.Repo.List(c.Request.Context(), cl.UserID(), domain.ThoughtFilter{
		Query:  strings.TrimSpace(c.Query("q")),
		Tag:    strings.TrimSpace(c.Query("tag")),
		Pinned: queryBool(c, "pinned"),
		Limit:  queryPositive(c, "limit", defaultListLimit, maxListLimit),
		Offset: queryInt(c, "offset", 0, 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thoughts": thoughts})
}

func (h *ThoughtHandler) Create(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Content  string      `json:"content" binding:"required"`
		Category *string     `json:"category"`
		Tags     domain.Tags `json:"tags"`
		Pinned   bool        `json:"pinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		badRequest(c, "content is required.")
		return
	}
	if req.Tags == nil {
		req.Tags = domain.Tags{}
	}
	thought, err := h.Repo.Create(c.Request.Context(), domain.Thought{
		UserID:   cl.UserID(),
		Content:  strings.TrimSpace(req.Content),
		Category: req.Category,
		Tags:     req.Tags,
		Pinned:   req.Pinned,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, thought)
}

func (h *ThoughtHandler) Get(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	thought, err := h.Repo.Get(c.Request.Context(), cl.UserID(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thought)
}

func (h *ThoughtHandler) Update(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Content  *string      `json:"content"`
		Category *string      `json:"category"`
		Tags     *domain.Tags `json:"tags"`
		Pinned   *bool        `json:"pinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid thought payload.")
		return
	}
	if req.Content != nil && strings.TrimSpace(*req.Content) == "" {
		badRequest(c, "content cannot be empty.")
		return
	}
	if req.Content == nil && req.Category == nil && req.Tags == nil && req.Pinned == nil {
		badRequest(c, "Nothing to update.")
		return
	}
	thought, err := h.Repo.Update(c.Request.Context(), cl.UserID(), c.Param("id"), domain.ThoughtUpdate{
		Content:  req.Content,
		Category: req.Category,
		Tags:     req.Tags,
		Pinned:   req.Pinned,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thought)
}

func (h *ThoughtHandler) Delete(c *gin.Context) {
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
