package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/apperr"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// ReportHandler serves audit and usage reports.
type ReportHandler struct {
	Audit repository.AuditRepository
	Usage repository.UsageRepository
}

func NewReportHandler(audit repository.AuditRepository, usage repository.UsageRepository) *ReportHandler {
	return &ReportHandler{Audit: audit, Usage: usage}
}

// AuditLog lists audit entries. Admin only.
func (h *ReportHandler) AuditLog(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}
	entries, err := h.Audit.List(c.Request.Context(), domain.AuditFilter{
		Action:       strings.TrimSpace(c.Query("action")),
		ActorID:      strings.TrimSpace(c.Query("actor_id")),
		ResourceType: strings.TrimSpace(c.Query("resource_type")),
		From:         from,
		To:           to,
		Limit:        queryPositive(c, "limit", defaultListLimit, maxListLimit),
		Offset:       queryInt(c, "offset", 0, 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// UsageSummary groups the caller's chat usage by day or model. Admins may
// pass user_id to inspect someone else.
func (h *ReportHandler) UsageSummary(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	userID := cl.UserID()
	if requested := strings.TrimSpace(c.Query("user_id")); requested != "" && requested != userID {
		if !cl.IsAdmin {
			respondError(c, apperr.Forbidden("Only admins can read other users' usage."))
			return
		}
		userID = requested
	}
	groupBy := strings.ToLower(strings.TrimSpace(c.DefaultQuery("group_by", "day")))
	if groupBy != "day" && groupBy != "model" {
		badRequest(c, "group_by must be day or model.")
		return
	}
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	buckets, err := h.Usage.Summary(c.Request.Context(), domain.UsageFilter{
		UserID:  userID,
		GroupBy: groupBy,
		From:    from,
		To:      to,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_by": groupBy, "usage": buckets})
}

// timeRange parses from/to as RFC3339 timestamps or plain dates. Both ends
// are inclusive; a plain to date covers that whole day. The returned upper
// bound is exclusive.
func timeRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	from, _, err := parseTime(c.Query("from"))
	if err != nil {
		badRequest(c, "from must be an RFC3339 timestamp or YYYY-MM-DD date.")
		return nil, nil, false
	}
	to, dateOnly, err := parseTime(c.Query("to"))
	if err != nil {
		badRequest(c, "to must be an RFC3339 timestamp or YYYY-MM-DD date.")
		return nil, nil, false
	}
	if from != nil && to != nil && to.Before(*from) {
		badRequest(c, "to must not be before from.")
		return nil, nil, false
	}
	if to != nil {
		// Postgres timestamps carry microseconds.
		end := to.Add(time.Microsecond)
		if dateOnly {
			end = to.AddDate(0, 0, 1)
		}
		to = &end
	}
	return from, to, true
}

func parseTime(raw string) (*time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, false, err
	}
	return &t, true, nil
}
