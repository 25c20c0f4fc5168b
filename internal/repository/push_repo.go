package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ PushTokenRepository = (*PostgresPushTokenRepo)(nil)

const (
	upsertPushTokenSQL = `
INSERT INTO push_tokens (user_id, token, platform)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform, updated_at = now()`

	deletePushTokenSQL = `DELETE FROM push_tokens WHERE user_id = $1 AND token = $2`

	listPushTokensSQL = `SELECT token FROM push_tokens WHERE user_id = $1 ORDER BY updated_at DESC`
)

// PostgresPushTokenRepo implements PushTokenRepository.
type PostgresPushTokenRepo struct {
	db *sqlx.DB
}

func NewPostgresPushTokenRepo(db *sqlx.DB) *PostgresPushTokenRepo {
	return &PostgresPushTokenRepo{db: db}
}

func (r *PostgresPushTokenRepo) Upsert(ctx context.Context, token domain.PushToken) error {
	_, err := r.db.ExecContext(ctx, upsertPushTokenSQL, token.UserID, token.Token, token.Platform)
	return wrapErr("upsert push token", err)
}

func (r *PostgresPushTokenRepo) Delete(ctx context.Context, userID, token string) error {
	res, err := r.db.ExecContext(ctx, deletePushTokenSQL, userID, token)
	if err != nil {
		return wrapErr("delete push token", err)
	}
	return requireAffected("delete push token", res)
}

func (r *PostgresPushTokenRepo) ForUser(ctx context.Context, userID string) ([]string, error) {
	out := []string{}
	if err := r.db.SelectContext(ctx, &out, listPushTokensSQL, userID); err != nil {
		return nil, wrapErr("list push tokens", err)
	}
	return out, nil
}
