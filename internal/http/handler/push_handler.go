package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/apperr"
	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
	pushsvc "github.com/smallbiznis/valora-bff/internal/service/push"
)

// PushHandler registers devices and sends notifications.
type PushHandler struct {
	Tokens     repository.PushTokenRepository
	Dispatcher pushsvc.Dispatcher
	Audit      *audit.Recorder
}

func NewPushHandler(tokens repository.PushTokenRepository, dispatcher pushsvc.Dispatcher, recorder *audit.Recorder) *PushHandler {
	return &PushHandler{Tokens: tokens, Dispatcher: dispatcher, Audit: recorder}
}

func (h *PushHandler) RegisterToken(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Token    string `json:"token" binding:"required"`
		Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required; platform must be ios, android or web.")
		return
	}
	platform := req.Platform
	if platform == "" {
		platform = "unknown"
	}
	token := domain.PushToken{UserID: cl.UserID(), Token: strings.TrimSpace(req.Token), Platform: platform}
	if err := h.Tokens.Upsert(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (h *PushHandler) DeleteToken(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	if err := h.Tokens.Delete(c.Request.Context(), cl.UserID(), c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Send notifies the caller, or any user when the caller is an admin.
func (h *PushHandler) Send(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		UserID string         `json:"user_id"`
		Title  string         `json:"title" binding:"required"`
		Body   string         `json:"body" binding:"required"`
		Data   map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "title and body are required.")
		return
	}
	target := cl.UserID()
	if req.UserID != "" && req.UserID != target {
		if !cl.IsAdmin {
			respondError(c, apperr.Forbidden("Only admins can notify other users."))
			return
		}
		target = req.UserID
	}

	res, err := h.Dispatcher.Dispatch(c.Request.Context(), domain.Notification{
		UserID: target,
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
	})
	if err != nil {
		respondError(c, apperr.Upstream(err, "Push delivery failed."))
		return
	}
	h.Audit.Record(c.Request.Context(), audit.Event{
		ActorID:      cl.UserID(),
		Action:       "push.sent",
		ResourceType: "user",
		ResourceID:   target,
		Metadata:     map[string]any{"queued": res.Queued, "sent": res.Sent},
	})

	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}
