package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/apperr"
	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// OrganizationHandler manages companies and their members.
type OrganizationHandler struct {
	Repo  repository.OrganizationRepository
	Audit *audit.Recorder
}

func NewOrganizationHandler(repo repository.OrganizationRepository, recorder *audit.Recorder) *OrganizationHandler {
	return &OrganizationHandler{Repo: repo, Audit: recorder}
}

// List returns the caller's memberships as resolved for this request.
func (h *OrganizationHandler) List(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	memberships := cl.Memberships
	if memberships == nil {
		memberships = []domain.Membership{}
	}
	c.JSON(http.StatusOK, gin.H{"organizations": memberships})
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Name     string  `json:"name" binding:"required,max=200"`
		Slug     string  `json:"slug" binding:"omitempty,slug,max=100"`
		Industry *string `json:"industry"`
		Size     *string `json:"size"`
		Website  *string `json:"website" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required; slug must be lowercase letters, digits and dashes.")
		return
	}
	name := strings.TrimSpace(req.Name)
	slug := req.Slug
	if slug == "" {
		slug = slugify(name)
	}
	if name == "" || slug == "" {
		badRequest(c, "name is required.")
		return
	}

	company, err := h.Repo.Create(c.Request.Context(), cl.UserID(), domain.Company{
		Name:     name,
		Slug:     slug,
		Industry: req.Industry,
		Size:     req.Size,
		Website:  req.Website,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			respondError(c, apperr.Wrap(err, http.StatusConflict, "slug_taken", "An organization with this slug already exists."))
			return
		}
		respondError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.Event{
		ActorID:      cl.UserID(),
		Action:       "organization.created",
		ResourceType: "company",
		ResourceID:   company.ID,
		Metadata:     map[string]any{"slug": company.Slug},
	})
	c.JSON(http.StatusCreated, company)
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.membership(c.Request.Context(), id, cl.UserID()); err != nil {
		respondError(c, err)
		return
	}
	company, err := h.Repo.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (h *OrganizationHandler) Update(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Name     *string `json:"name" binding:"omitempty,max=200"`
		Industry *string `json:"industry"`
		Size     *string `json:"size"`
		Website  *string `json:"website" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid organization payload.")
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			badRequest(c, "name cannot be empty.")
			return
		}
		req.Name = &trimmed
	}

	id := c.Param("id")
	member, err := h.membership(c.Request.Context(), id, cl.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	if !member.CanManage() {
		respondError(c, apperr.Forbidden("Only owners and admins can edit the organization."))
		return
	}

	company, err := h.Repo.Update(c.Request.Context(), id, domain.CompanyUpdate{
		Name:     req.Name,
		Industry: req.Industry,
		Size:     req.Size,
		Website:  req.Website,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.Event{
		ActorID:      cl.UserID(),
		Action:       "organization.updated",
		ResourceType: "company",
		ResourceID:   company.ID,
	})
	c.JSON(http.StatusOK, company)
}

func (h *OrganizationHandler) Members(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.membership(c.Request.Context(), id, cl.UserID()); err != nil {
		respondError(c, err)
		return
	}
	members, err := h.Repo.Members(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// membership hides companies the caller does not belong to behind a 404.
func (h *OrganizationHandler) membership(ctx context.Context, companyID, userID string) (domain.Membership, error) {
	m, err := h.Repo.Membership(ctx, companyID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Membership{}, apperr.NotFound("Organization not found.")
		}
		return domain.Membership{}, err
	}
	return m, nil
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
