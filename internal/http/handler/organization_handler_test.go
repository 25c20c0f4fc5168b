package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/http/handler"
)

type fakeOrgRepo struct {
	companies map[string]domain.Company
	roles     map[string]string // companyID/userID -> role
	created   domain.Company
	update    domain.CompanyUpdate
}

func newFakeOrgRepo() *fakeOrgRepo {
	return &fakeOrgRepo{
		companies: map[string]domain.Company{
			"co-1": {ID: "co-1", Name: "Acme", Slug: "acme"},
		},
		roles: map[string]string{
			"co-1/user-1": domain.RoleOwner,
			"co-1/user-2": domain.RoleMember,
		},
	}
}

func (f *fakeOrgRepo) Create(_ context.Context, ownerID string, company domain.Company) (domain.Company, error) {
	for _, existing := range f.companies {
		if existing.Slug == company.Slug {
			return domain.Company{}, domain.ErrConflict
		}
	}
	company.ID = "co-new"
	company.CreatedBy = ownerID
	f.created = company
	return company, nil
}

func (f *fakeOrgRepo) Get(_ context.Context, id string) (domain.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return domain.Company{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeOrgRepo) Update(_ context.Context, id string, update domain.CompanyUpdate) (domain.Company, error) {
	f.update = update
	c := f.companies[id]
	if update.Name != nil {
		c.Name = *update.Name
	}
	return c, nil
}

func (f *fakeOrgRepo) Membership(_ context.Context, companyID, userID string) (domain.Membership, error) {
	role, ok := f.roles[companyID+"/"+userID]
	if !ok {
		return domain.Membership{}, domain.ErrNotFound
	}
	return domain.Membership{CompanyID: companyID, Role: role}, nil
}

func (f *fakeOrgRepo) Members(_ context.Context, companyID string) ([]domain.Member, error) {
	return []domain.Member{{UserID: "user-1", Role: domain.RoleOwner}, {UserID: "user-2", Role: domain.RoleMember}}, nil
}

func newOrgEngine(userID string, repo *fakeOrgRepo, auditRepo *memAuditRepo) http.Handler {
	h := handler.NewOrganizationHandler(repo, audit.NewRecorder(auditRepo, zap.NewNop()))
	cl := testCaller(userID, false)
	cl.Memberships = []domain.Membership{{CompanyID: "co-1", Name: "Acme", Slug: "acme", Role: domain.RoleOwner}}
	r := newEngine(cl)
	r.GET("/api/organizations", h.List)
	r.POST("/api/organizations", h.Create)
	r.GET("/api/organizations/:id", h.Get)
	r.PATCH("/api/organizations/:id", h.Update)
	r.GET("/api/organizations/:id/members", h.Members)
	return r
}

func TestOrganizationCreateDerivesSlug(t *testing.T) {
	repo, auditRepo := newFakeOrgRepo(), &memAuditRepo{}
	r := newOrgEngine("user-1", repo, auditRepo)

	w := doJSON(t, r, http.MethodPost, "/api/organizations", map[string]any{"name": "  Blue Sky Labs! "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "blue-sky-labs", repo.created.Slug)
	require.Equal(t, "Blue Sky Labs!", repo.created.Name)
	require.Equal(t, "user-1", repo.created.CreatedBy)
	require.Equal(t, []string{"organization.created"}, auditRepo.actions())
}

func TestOrganizationCreateConflictAndValidation(t *testing.T) {
	r := newOrgEngine("user-1", newFakeOrgRepo(), &memAuditRepo{})

	w := doJSON(t, r, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "slug_taken", decode(t, w)["error"])

	w = doJSON(t, r, http.MethodPost, "/api/organizations", map[string]any{"name": "Other", "slug": "Bad Slug"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/organizations", map[string]any{"name": "!!!"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrganizationListUsesResolvedMemberships(t *testing.T) {
	r := newOrgEngine("user-1", newFakeOrgRepo(), &memAuditRepo{})

	w := doJSON(t, r, http.MethodGet, "/api/organizations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orgs := decode(t, w)["organizations"].([]any)
	require.Len(t, orgs, 1)
	require.Equal(t, "acme", orgs[0].(map[string]any)["slug"])
}

func TestOrganizationAccessRules(t *testing.T) {
	repo := newFakeOrgRepo()

	owner := newOrgEngine("user-1", repo, &memAuditRepo{})
	w := doJSON(t, owner, http.MethodGet, "/api/organizations/co-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, owner, http.MethodPatch, "/api/organizations/co-1", map[string]any{"name": "Acme Inc"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Acme Inc", decode(t, w)["name"])
	w = doJSON(t, owner, http.MethodGet, "/api/organizations/co-1/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode(t, w)["members"], 2)

	member := newOrgEngine("user-2", repo, &memAuditRepo{})
	w = doJSON(t, member, http.MethodPatch, "/api/organizations/co-1", map[string]any{"name": "Hijacked"})
	require.Equal(t, http.StatusForbidden, w.Code)

	outsider := newOrgEngine("user-3", repo, &memAuditRepo{})
	w = doJSON(t, outsider, http.MethodGet, "/api/organizations/co-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, outsider, http.MethodGet, "/api/organizations/co-1/members", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrganizationUpdateRejectsBlankName(t *testing.T) {
	r := newOrgEngine("user-1", newFakeOrgRepo(), &memAuditRepo{})

	w := doJSON(t, r, http.MethodPatch, "/api/organizations/co-1", map[string]any{"name": "  "})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
