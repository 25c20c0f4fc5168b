package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

// Compile-time interface assertions.
var (
	_ ProfileRepository      = (*PostgresProfileRepo)(nil)
	_ OrganizationRepository = (*PostgresOrganizationRepo)(nil)
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
	pgOutOfRange          = "22003"
	pgBadDatetime         = "22007"
	pgDatetimeOverflow    = "22008"
)

// wrapErr annotates err with op and maps driver errors onto domain sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrNotFound, pgErr.Message)
		case pgInvalidText, pgOutOfRange, pgBadDatetime, pgDatetimeOverflow:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidValue, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapIDErr is wrapErr for statements keyed by a caller-supplied id. A
// malformed id cannot name a row, so it reads as not found.
func wrapIDErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidText {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return wrapErr(op, err)
}

func requireAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

const profileColumns = `id, authentik_id, email, display_name, avatar_url, company_id, role, last_seen_at, created_at, updated_at`

const upsertProfileSQL = `
INSERT INTO user_profiles (authentik_id, email, display_name, last_seen_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (authentik_id) DO UPDATE SET
    email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE user_profiles.email END,
    display_name = CASE WHEN user_profiles.display_name = '' THEN EXCLUDED.display_name ELSE user_profiles.display_name END,
    last_seen_at = now(),
    updated_at = now()
RETURNING ` + profileColumns

const listMembershipsSQL = `
SELECT m.company_id, c.name, c.slug, m.role, m.joined_at
FROM company_members m
JOIN companies c ON c.id = m.company_id
WHERE m.user_id = $1
ORDER BY m.joined_at`

// PostgresProfileRepo implements ProfileRepository.
type PostgresProfileRepo struct {
	db *sqlx.DB
}

func NewPostgresProfileRepo(db *sqlx.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

func (r *PostgresProfileRepo) UpsertFromPrincipal(ctx context.Context, principal domain.Principal) (domain.Profile, error) {
	name := principal.Name
	if name == "" {
		name = principal.PreferredUsername
	}
	var profile domain.Profile
	err := r.db.QueryRowxContext(ctx, upsertProfileSQL, principal.Subject, principal.Email, name).StructScan(&profile)
	if err != nil {
		return domain.Profile{}, wrapErr("upsert profile", err)
	}
	return profile, nil
}

func (r *PostgresProfileRepo) Memberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	out := []domain.Membership{}
	if err := r.db.SelectContext(ctx, &out, listMembershipsSQL, userID); err != nil {
		return nil, wrapErr("list memberships", err)
	}
	return out, nil
}

const companyColumns = `id, name, slug, industry, size, website, created_by, created_at, updated_at`

const (
	insertCompanySQL = `
INSERT INTO companies (name, slug, industry, size, website, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + companyColumns

	insertMemberSQL = `INSERT INTO company_members (company_id, user_id, role) VALUES ($1, $2, $3)`

	adoptCompanySQL = `UPDATE user_profiles SET company_id = $1, updated_at = now() WHERE id = $2 AND company_id IS NULL`

	getCompanySQL = `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`

	updateCompanySQL = `
UPDATE companies SET
    name = coalesce($2, name),
    industry = coalesce($3, industry),
    size = coalesce($4, size),
    website = coalesce($5, website),
    updated_at = now()
WHERE id = $1
RETURNING ` + companyColumns

	getMembershipSQL = `
SELECT m.company_id, c.name, c.slug, m.role, m.joined_at
FROM company_members m
JOIN companies c ON c.id = m.company_id
WHERE m.company_id = $1 AND m.user_id = $2`

	listMembersSQL = `
SELECT m.user_id, p.email, p.display_name, m.role, m.joined_at
FROM company_members m
JOIN user_profiles p ON p.id = m.user_id
WHERE m.company_id = $1
ORDER BY m.joined_at`
)

// PostgresOrganizationRepo implements OrganizationRepository.
type PostgresOrganizationRepo struct {
	db *sqlx.DB
}

func NewPostgresOrganizationRepo(db *sqlx.DB) *PostgresOrganizationRepo {
	return &PostgresOrganizationRepo{db: db}
}

// Create inserts the company, makes ownerID its owner and adopts it as the
// owner's primary company when they have none.
func (r *PostgresOrganizationRepo) Create(ctx context.Context, ownerID string, company domain.Company) (domain.Company, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Company{}, wrapErr("begin create company", err)
	}
	defer func() { _ = tx.Rollback() }()

	var created domain.Company
	err = tx.QueryRowxContext(ctx, insertCompanySQL,
		company.Name, company.Slug, company.Industry, company.Size, company.Website, ownerID,
	).StructScan(&created)
	if err != nil {
		return domain.Company{}, wrapErr("insert company", err)
	}
	if _, err := tx.ExecContext(ctx, insertMemberSQL, created.ID, ownerID, domain.RoleOwner); err != nil {
		return domain.Company{}, wrapErr("insert owner membership", err)
	}
	if _, err := tx.ExecContext(ctx, adoptCompanySQL, created.ID, ownerID); err != nil {
		return domain.Company{}, wrapErr("adopt company", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, wrapErr("commit create company", err)
	}
	return created, nil
}

func (r *PostgresOrganizationRepo) Get(ctx context.Context, companyID string) (domain.Company, error) {
	var company domain.Company
	if err := r.db.GetContext(ctx, &company, getCompanySQL, companyID); err != nil {
		return domain.Company{}, wrapIDErr("get company", err)
	}
	return company, nil
}

func (r *PostgresOrganizationRepo) Update(ctx context.Context, companyID string, update domain.CompanyUpdate) (domain.Company, error) {
	var company domain.Company
	err := r.db.QueryRowxContext(ctx, updateCompanySQL,
		companyID, update.Name, update.Industry, update.Size, update.Website,
	).StructScan(&company)
	if err != nil {
		return domain.Company{}, wrapIDErr("update company", err)
	}
	return company, nil
}

func (r *PostgresOrganizationRepo) Membership(ctx context.Context, companyID, userID string) (domain.Membership, error) {
	var m domain.Membership
	if err := r.db.GetContext(ctx, &m, getMembershipSQL, companyID, userID); err != nil {
		return domain.Membership{}, wrapIDErr("get membership", err)
	}
	return m, nil
}

func (r *PostgresOrganizationRepo) Members(ctx context.Context, companyID string) ([]domain.Member, error) {
	out := []domain.Member{}
	if err := r.db.SelectContext(ctx, &out, listMembersSQL, companyID); err != nil {
		return nil, wrapIDErr("list members", err)
	}
	return out, nil
}
