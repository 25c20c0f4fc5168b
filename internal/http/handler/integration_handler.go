package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/repository"
)

// IntegrationHandler exposes the integration catalog with the caller's status.
type IntegrationHandler struct {
	Repo repository.IntegrationRepository
}

func NewIntegrationHandler(repo repository.IntegrationRepository) *IntegrationHandler {
	return &IntegrationHandler{Repo: repo}
}

func (h *IntegrationHandler) List(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	items, err := h.Repo.Catalog(c.Request.Context(), cl.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": items})
}

func (h *IntegrationHandler) Get(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	item, err := h.Repo.Get(c.Request.Context(), cl.UserID(), strings.ToLower(c.Param("slug")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
