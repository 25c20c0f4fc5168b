package org

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// Context stores the resolved caller used throughout the request lifecycle.
type Context struct {
	Principal   domain.Principal
	Profile     domain.Profile
	Memberships []domain.Membership
	IsAdmin     bool
}

// UserID is the caller's local profile id.
func (c *Context) UserID() string {
	return c.Profile.ID
}

// Membership returns the caller's role in companyID.
func (c *Context) Membership(companyID string) (domain.Membership, bool) {
	for _, m := range c.Memberships {
		if m.CompanyID == companyID {
			return m, true
		}
	}
	return domain.Membership{}, false
}

// Resolver maps an Authentik principal onto local records.
type Resolver struct {
	profiles   repository.ProfileRepository
	adminGroup string
}

// NewResolver creates a caller resolver.
func NewResolver(profiles repository.ProfileRepository, adminGroup string) *Resolver {
	return &Resolver{profiles: profiles, adminGroup: strings.TrimSpace(adminGroup)}
}

// Resolve upserts the caller's profile and loads their memberships.
func (r *Resolver) Resolve(ctx context.Context, principal domain.Principal) (*Context, error) {
	if strings.TrimSpace(principal.Subject) == "" {
		zap.L().Warn("caller resolver received empty subject")
		return nil, fmt.Errorf("resolve caller: empty subject")
	}

	profile, err := r.profiles.UpsertFromPrincipal(ctx, principal)
	if err != nil {
		zap.L().Error("failed to upsert profile", zap.String("subject", principal.Subject), zap.Error(err))
		return nil, fmt.Errorf("resolve profile: %w", err)
	}

	memberships, err := r.profiles.Memberships(ctx, profile.ID)
	if err != nil {
		zap.L().Error("failed to load memberships", zap.String("user_id", profile.ID), zap.Error(err))
		return nil, fmt.Errorf("resolve memberships: %w", err)
	}

	zap.L().Debug("caller resolved", zap.String("subject", principal.Subject), zap.String("user_id", profile.ID))

	return &Context{
		Principal:   principal,
		Profile:     profile,
		Memberships: memberships,
		IsAdmin:     r.adminGroup != "" && principal.InGroup(r.adminGroup),
	}, nil
}
