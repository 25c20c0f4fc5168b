package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ IntegrationRepository = (*PostgresIntegrationRepo)(nil)

const integrationStatusSelect = `
SELECT i.slug, i.name, i.category, i.auth_type, i.description, i.enabled,
       ui.status, ui.external_email, ui.connected_at, ui.last_synced_at
FROM integrations i
LEFT JOIN user_integrations ui ON ui.integration_slug = i.slug AND ui.user_id = $1`

const (
	catalogSQL = integrationStatusSelect + `
WHERE i.enabled
ORDER BY i.category, i.name`

	getIntegrationSQL = integrationStatusSelect + `
WHERE i.slug = $2`

	seedIntegrationSQL = `
INSERT INTO integrations (slug, name, category, auth_type, description, enabled)
VALUES (:slug, :name, :category, :auth_type, :description, :enabled)
ON CONFLICT (slug) DO UPDATE SET
    name = EXCLUDED.name,
    category = EXCLUDED.category,
    auth_type = EXCLUDED.auth_type,
    enabled = EXCLUDED.enabled,
    updated_at = now()`
)

// PostgresIntegrationRepo implements IntegrationRepository.
type PostgresIntegrationRepo struct {
	db *sqlx.DB
}

func NewPostgresIntegrationRepo(db *sqlx.DB) *PostgresIntegrationRepo {
	return &PostgresIntegrationRepo{db: db}
}

func (r *PostgresIntegrationRepo) Catalog(ctx context.Context, userID string) ([]domain.IntegrationStatus, error) {
	out := []domain.IntegrationStatus{}
	if err := r.db.SelectContext(ctx, &out, catalogSQL, userID); err != nil {
		return nil, wrapErr("list integrations", err)
	}
	return out, nil
}

func (r *PostgresIntegrationRepo) Get(ctx context.Context, userID, slug string) (domain.IntegrationStatus, error) {
	var out domain.IntegrationStatus
	if err := r.db.GetContext(ctx, &out, getIntegrationSQL, userID, slug); err != nil {
		return domain.IntegrationStatus{}, wrapErr("get integration", err)
	}
	return out, nil
}

// Seed upserts catalog rows; descriptions edited in the database are kept.
func (r *PostgresIntegrationRepo) Seed(ctx context.Context, integrations []domain.Integration) error {
	if len(integrations) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("begin seed integrations", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, in := range integrations {
		if _, err := tx.NamedExecContext(ctx, seedIntegrationSQL, in); err != nil {
			return wrapErr("seed integration "+in.Slug, err)
		}
	}
	return wrapErr("commit seed integrations", tx.Commit())
}
