package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ ConnectionRepository = (*PostgresConnectionRepo)(nil)

const (
	upsertTokenSQL = `
INSERT INTO oauth_tokens (user_id, integration_slug, access_token, refresh_token, token_type, scope, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, integration_slug) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = coalesce(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
    token_type = EXCLUDED.token_type,
    scope = coalesce(EXCLUDED.scope, oauth_tokens.scope),
    expires_at = EXCLUDED.expires_at,
    updated_at = now()`

	upsertUserIntegrationSQL = `
INSERT INTO user_integrations (user_id, integration_slug, status, external_id, external_email, external_name, account_id, account_name, metadata, connected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, coalesce($9::jsonb, '{}'::jsonb), now())
ON CONFLICT (user_id, integration_slug) DO UPDATE SET
    status = EXCLUDED.status,
    external_id = EXCLUDED.external_id,
    external_email = EXCLUDED.external_email,
    external_name = EXCLUDED.external_name,
    account_id = EXCLUDED.account_id,
    account_name = EXCLUDED.account_name,
    metadata = EXCLUDED.metadata,
    connected_at = now(),
    updated_at = now()`

	getTokenSQL = `
SELECT access_token, refresh_token, token_type, scope, expires_at, updated_at
FROM oauth_tokens
WHERE user_id = $1 AND integration_slug = $2`

	markSyncedSQL = `
UPDATE user_integrations SET
    status = 'connected',
    external_id = coalesce($3, external_id),
    external_email = coalesce($4, external_email),
    external_name = coalesce($5, external_name),
    account_id = coalesce($6, account_id),
    account_name = coalesce($7, account_name),
    metadata = coalesce($8::jsonb, metadata),
    last_synced_at = $9,
    updated_at = now()
WHERE user_id = $1 AND integration_slug = $2`

	markStatusSQL = `UPDATE user_integrations SET status = $3, updated_at = now() WHERE user_id = $1 AND integration_slug = $2`

	listUserIntegrationsSQL = `
SELECT id, user_id, integration_slug, status, external_id, external_email, external_name,
       account_id, account_name, metadata, connected_at, last_synced_at, updated_at
FROM user_integrations
WHERE user_id = $1
ORDER BY integration_slug`

	deleteTokenSQL = `DELETE FROM oauth_tokens WHERE user_id = $1 AND integration_slug = $2`
)

// PostgresConnectionRepo implements ConnectionRepository over oauth_tokens and user_integrations.
type PostgresConnectionRepo struct {
	db *sqlx.DB
}

func NewPostgresConnectionRepo(db *sqlx.DB) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{db: db}
}

// SaveConnection upserts the token and the connection row in one transaction.
func (r *PostgresConnectionRepo) SaveConnection(ctx context.Context, conn domain.UserIntegration, token SealedToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("begin save connection", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertTokenSQL,
		conn.UserID, conn.IntegrationSlug, token.AccessToken, token.RefreshToken, token.TokenType, token.Scope, token.ExpiresAt,
	); err != nil {
		return wrapErr("upsert oauth token", err)
	}
	if _, err := tx.ExecContext(ctx, upsertUserIntegrationSQL,
		conn.UserID, conn.IntegrationSlug, conn.Status, conn.ExternalID, conn.ExternalEmail,
		conn.ExternalName, conn.AccountID, conn.AccountName, conn.Metadata,
	); err != nil {
		return wrapErr("upsert user integration", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit save connection", err)
	}
	return nil
}

func (r *PostgresConnectionRepo) GetToken(ctx context.Context, userID, slug string) (SealedToken, error) {
	var token SealedToken
	if err := r.db.GetContext(ctx, &token, getTokenSQL, userID, slug); err != nil {
		return SealedToken{}, wrapErr("get oauth token", err)
	}
	return token, nil
}

func (r *PostgresConnectionRepo) SaveToken(ctx context.Context, userID, slug string, token SealedToken) error {
	_, err := r.db.ExecContext(ctx, upsertTokenSQL,
		userID, slug, token.AccessToken, token.RefreshToken, token.TokenType, token.Scope, token.ExpiresAt,
	)
	return wrapErr("save oauth token", err)
}

func (r *PostgresConnectionRepo) MarkSynced(ctx context.Context, conn domain.UserIntegration, syncedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, markSyncedSQL,
		conn.UserID, conn.IntegrationSlug, conn.ExternalID, conn.ExternalEmail, conn.ExternalName,
		conn.AccountID, conn.AccountName, conn.Metadata, syncedAt,
	)
	if err != nil {
		return wrapErr("mark synced", err)
	}
	return requireAffected("mark synced", res)
}

func (r *PostgresConnectionRepo) MarkStatus(ctx context.Context, userID, slug, status string) error {
	res, err := r.db.ExecContext(ctx, markStatusSQL, userID, slug, status)
	if err != nil {
		return wrapErr("mark status", err)
	}
	return requireAffected("mark status", res)
}

func (r *PostgresConnectionRepo) List(ctx context.Context, userID string) ([]domain.UserIntegration, error) {
	out := []domain.UserIntegration{}
	if err := r.db.SelectContext(ctx, &out, listUserIntegrationsSQL, userID); err != nil {
		return nil, wrapErr("list user integrations", err)
	}
	return out, nil
}

// Delete drops the stored token and flags the connection as disconnected.
func (r *PostgresConnectionRepo) Delete(ctx context.Context, userID, slug string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("begin disconnect", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteTokenSQL, userID, slug); err != nil {
		return wrapErr("delete oauth token", err)
	}
	res, err := tx.ExecContext(ctx, markStatusSQL, userID, slug, domain.IntegrationDisconnected)
	if err != nil {
		return wrapErr("disconnect integration", err)
	}
	if err := requireAffected("disconnect integration", res); err != nil {
		return err
	}
	return wrapErr("commit disconnect", tx.Commit())
}
