package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ ThoughtRepository = (*PostgresThoughtRepo)(nil)

const thoughtColumns = `id, user_id, content, category, tags, pinned, created_at, updated_at`

const (
	insertThoughtSQL = `
INSERT INTO thoughts (user_id, content, category, tags, pinned)
VALUES ($1, $2, $3, $4::jsonb, $5)
RETURNING ` + thoughtColumns

	getThoughtSQL = `SELECT ` + thoughtColumns + ` FROM thoughts WHERE id = $1 AND user_id = $2`

	updateThoughtSQL = `
UPDATE thoughts SET
    content = coalesce($3, content),
    category = coalesce($4, category),
    tags = coalesce($5::jsonb, tags),
    pinned = coalesce($6, pinned),
    updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING ` + thoughtColumns

	deleteThoughtSQL = `DELETE FROM thoughts WHERE id = $1 AND user_id = $2`
)

// PostgresThoughtRepo implements ThoughtRepository.
type PostgresThoughtRepo struct {
	db *sqlx.DB
}

func NewPostgresThoughtRepo(db *sqlx.DB) *PostgresThoughtRepo {
	return &PostgresThoughtRepo{db: db}
}

func (r *PostgresThoughtRepo) List(ctx context.Context, userID string, filter domain.ThoughtFilter) ([]domain.Thought, error) {
	query, args := buildThoughtListQuery(userID, filter)
	out := []domain.Thought{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrapErr("list thoughts", err)
	}
	return out, nil
}

func buildThoughtListQuery(userID string, filter domain.ThoughtFilter) (string, []any) {
	args := []any{userID}
	where := []string{"user_id = $1"}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		where = append(where, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		args = append(args, tag)
		where = append(where, fmt.Sprintf("tags @> jsonb_build_array($%d::text)", len(args)))
	}
	if filter.Pinned != nil {
		args = append(args, *filter.Pinned)
		where = append(where, fmt.Sprintf("pinned = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM thoughts WHERE %s ORDER BY pinned DESC, created_at DESC LIMIT $%d OFFSET $%d",
		thoughtColumns, strings.Join(where, " AND "), len(args)-1, len(args),
	)
	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *PostgresThoughtRepo) Create(ctx context.Context, thought domain.Thought) (domain.Thought, error) {
	var out domain.Thought
	err := r.db.QueryRowxContext(ctx, insertThoughtSQL,
		thought.UserID, thought.Content, thought.Category, thought.Tags, thought.Pinned,
	).StructScan(&out)
	if err != nil {
		return domain.Thought{}, wrapErr("create thought", err)
	}
	return out, nil
}

func (r *PostgresThoughtRepo) Get(ctx context.Context, userID, id string) (domain.Thought, error) {
	var out domain.Thought
	if err := r.db.GetContext(ctx, &out, getThoughtSQL, id, userID); err != nil {
		return domain.Thought{}, wrapIDErr("get thought", err)
	}
	return out, nil
}

func (r *PostgresThoughtRepo) Update(ctx context.Context, userID, id string, update domain.ThoughtUpdate) (domain.Thought, error) {
	var tags any
	if update.Tags != nil {
		tags = *update.Tags
	}
	var out domain.Thought
	err := r.db.QueryRowxContext(ctx, updateThoughtSQL,
		id, userID, update.Content, update.Category, tags, update.Pinned,
	).StructScan(&out)
	if err != nil {
		return domain.Thought{}, wrapIDErr("update thought", err)
	}
	return out, nil
}

func (r *PostgresThoughtRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, deleteThoughtSQL, id, userID)
	if err != nil {
		return wrapIDErr("delete thought", err)
	}
	return requireAffected("delete thought", res)
}
