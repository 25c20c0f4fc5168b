package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/audit"
)

// IdentityAdmin is the subset of the Authentik API proxied to admins.
type IdentityAdmin interface {
	ListUsers(ctx context.Context, search string, page int) ([]byte, error)
	ListGroups(ctx context.Context) ([]byte, error)
	AddGroupMember(ctx context.Context, groupID string, userPK int64) error
}

// AuthHandler exposes the caller identity and the admin identity routes.
type AuthHandler struct {
	Identity IdentityAdmin
	Audit    *audit.Recorder
}

func NewAuthHandler(identity IdentityAdmin, recorder *audit.Recorder) *AuthHandler {
	return &AuthHandler{Identity: identity, Audit: recorder}
}

// Me returns the verified principal with its local profile and memberships.
func (h *AuthHandler) Me(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	groups := cl.Principal.Groups
	if groups == nil {
		groups = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"sub":                cl.Principal.Subject,
			"email":              cl.Principal.Email,
			"name":               cl.Principal.Name,
			"preferred_username": cl.Principal.PreferredUsername,
			"groups":             groups,
			"is_admin":           cl.IsAdmin,
		},
		"profile":       cl.Profile,
		"organizations": cl.Memberships,
	})
}

func (h *AuthHandler) Users(c *gin.Context) {
	raw, err := h.Identity.ListUsers(c.Request.Context(), strings.TrimSpace(c.Query("search")), queryPositive(c, "page", 1, 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, raw)
}

func (h *AuthHandler) Groups(c *gin.Context) {
	raw, err := h.Identity.ListGroups(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, raw)
}

// AddGroupMember adds an Authentik user (by primary key) to a group.
func (h *AuthHandler) AddGroupMember(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		UserPK int64 `json:"user_pk" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_pk is required.")
		return
	}
	groupID := c.Param("id")
	if err := h.Identity.AddGroupMember(c.Request.Context(), groupID, req.UserPK); err != nil {
		respondError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.Event{
		ActorID:      cl.UserID(),
		Action:       "group.member_added",
		ResourceType: "authentik_group",
		ResourceID:   groupID,
		Metadata:     map[string]any{"user_pk": req.UserPK},
	})
	c.JSON(http.StatusOK, gin.H{"added": true})
}
