package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	oauthsvc "github.com/smallbiznis/valora-bff/internal/service/oauth"
)

// OAuthHandler exposes the integration connect flow.
type OAuthHandler struct {
	OAuth oauthsvc.Service
}

func NewOAuthHandler(svc oauthsvc.Service) *OAuthHandler {
	return &OAuthHandler{OAuth: svc}
}

// Providers lists the providers a user can connect.
func (h *OAuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.OAuth.ListProviders(c.Request.Context())})
}

// Start issues a state and sends the browser to the provider. With
// ?mode=json the authorization URL is returned instead.
func (h *OAuthHandler) Start(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	auth, err := h.OAuth.Start(c.Request.Context(), oauthsvc.StartInput{
		UserID:      cl.UserID(),
		Slug:        c.Param("slug"),
		RedirectURI: strings.TrimSpace(c.Query("redirect_uri")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if strings.EqualFold(c.Query("mode"), "json") {
		c.JSON(http.StatusOK, auth)
		return
	}
	c.Redirect(http.StatusFound, auth.AuthorizationURL)
}

// CreateState issues a state plus PKCE challenge for client-driven redirects.
func (h *OAuthHandler) CreateState(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Integration string `json:"integration" binding:"required,slug"`
		RedirectURI string `json:"redirectUri"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "integration is required.")
		return
	}
	auth, err := h.OAuth.CreateState(c.Request.Context(), oauthsvc.StartInput{
		UserID:      cl.UserID(),
		Slug:        req.Integration,
		RedirectURI: strings.TrimSpace(req.RedirectURI),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, auth)
}

// Callback receives the provider or broker redirect. It always answers with
// a redirect back to the frontend; the outcome travels in the query string.
func (h *OAuthHandler) Callback(c *gin.Context) {
	res, err := h.OAuth.HandleCallback(c.Request.Context(), oauthsvc.CallbackInput{
		State:            c.Query("state"),
		Code:             c.Query("code"),
		RelayCode:        c.Query("relay_code"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		_ = c.Error(err)
	}
	if res == nil || res.RedirectURL == "" {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, res.RedirectURL)
}

// Token completes a flow for an authenticated client holding the state.
func (h *OAuthHandler) Token(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		State     string `json:"state" binding:"required"`
		Code      string `json:"code"`
		RelayCode string `json:"relayCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "state is required.")
		return
	}
	conn, err := h.OAuth.ExchangeToken(c.Request.Context(), cl.UserID(), oauthsvc.ExchangeInput{
		State:     req.State,
		Code:      req.Code,
		RelayCode: req.RelayCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "integration": conn})
}

// Sync refreshes the stored token and provider identity.
func (h *OAuthHandler) Sync(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	conn, err := h.OAuth.Sync(c.Request.Context(), cl.UserID(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": true, "integration": conn})
}

func (h *OAuthHandler) Connections(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	conns, err := h.OAuth.ListConnections(c.Request.Context(), cl.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

func (h *OAuthHandler) Disconnect(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	if err := h.OAuth.Disconnect(c.Request.Context(), cl.UserID(), c.Param("slug")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}
