package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

const (
	defaultSearchLimit     = 10
	maxSearchLimit         = 50
	defaultSearchThreshold = 0.5
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

// VectorHandler stores and searches embedded documents.
type VectorHandler struct {
	Embedder Embedder
	Repo     repository.DocumentRepository
}

func NewVectorHandler(embedder Embedder, repo repository.DocumentRepository) *VectorHandler {
	return &VectorHandler{Embedder: embedder, Repo: repo}
}

func (h *VectorHandler) Insert(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Title    *string     `json:"title"`
		Content  string      `json:"content" binding:"required"`
		Metadata domain.JSON `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		badRequest(c, "content is required.")
		return
	}
	embedding, err := h.Embedder.Embed(c.Request.Context(), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	doc, err := h.Repo.Insert(c.Request.Context(), domain.Document{
		UserID:   cl.UserID(),
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	}, embedding)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *VectorHandler) Search(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Query     string   `json:"query" binding:"required"`
		Limit     int      `json:"limit" binding:"omitempty,min=1"`
		Threshold *float64 `json:"threshold" binding:"omitempty,min=0,max=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		badRequest(c, "query is required; threshold must be between 0 and 1.")
		return
	}
	limit := req.Limit
	switch {
	case limit == 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}
	threshold := defaultSearchThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	embedding, err := h.Embedder.Embed(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	matches, err := h.Repo.Search(c.Request.Context(), cl.UserID(), embedding, limit, threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}

func (h *VectorHandler) Delete(c *gin.Context) {
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
