package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var (
	_ AuditRepository = (*PostgresAuditRepo)(nil)
	_ UsageRepository = (*PostgresUsageRepo)(nil)
)

const insertAuditSQL = `
INSERT INTO audit_logs (id, actor_id, action, resource_type, resource_id, metadata, ip_address)
VALUES ($1, $2, $3, $4, $5, coalesce($6::jsonb, '{}'::jsonb), $7)`

// PostgresAuditRepo implements AuditRepository; ids come from a snowflake node.
type PostgresAuditRepo struct {
	db   *sqlx.DB
	node *snowflake.Node
}

func NewPostgresAuditRepo(db *sqlx.DB, node *snowflake.Node) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db, node: node}
}

func (r *PostgresAuditRepo) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == 0 {
		entry.ID = r.node.Generate().Int64()
	}
	_, err := r.db.ExecContext(ctx, insertAuditSQL,
		entry.ID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, entry.Metadata, entry.IPAddress,
	)
	return wrapErr("record audit", err)
}

func (r *PostgresAuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	query := "SELECT id, actor_id, action, resource_type, resource_id, metadata, ip_address, created_at FROM audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	out := []domain.AuditEntry{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrapErr("list audit", err)
	}
	return out, nil
}

const insertUsageSQL = `
INSERT INTO usage_events (user_id, conversation_id, model, prompt_tokens, completion_tokens, total_tokens)
VALUES ($1, $2, $3, $4, $5, $6)`

// PostgresUsageRepo implements UsageRepository.
type PostgresUsageRepo struct {
	db *sqlx.DB
}

func NewPostgresUsageRepo(db *sqlx.DB) *PostgresUsageRepo {
	return &PostgresUsageRepo{db: db}
}

func (r *PostgresUsageRepo) Record(ctx context.Context, event domain.UsageEvent) error {
	total := event.TotalTokens
	if total == 0 {
		total = event.PromptTokens + event.CompletionTokens
	}
	_, err := r.db.ExecContext(ctx, insertUsageSQL,
		event.UserID, event.ConversationID, event.Model, event.PromptTokens, event.CompletionTokens, total,
	)
	return wrapErr("record usage", err)
}

// Summary aggregates usage per day or per model. An empty UserID spans all users.
func (r *PostgresUsageRepo) Summary(ctx context.Context, filter domain.UsageFilter) ([]domain.UsageBucket, error) {
	bucket := "to_char(date_trunc('day', created_at), 'YYYY-MM-DD')"
	if filter.GroupBy == "model" {
		bucket = "model"
	}

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := "SELECT " + bucket + ` AS bucket,
       count(*) AS requests,
       coalesce(sum(prompt_tokens), 0) AS prompt_tokens,
       coalesce(sum(completion_tokens), 0) AS completion_tokens,
       coalesce(sum(total_tokens), 0) AS total_tokens
FROM usage_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY 1 ORDER BY 1"

	out := []domain.UsageBucket{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrapErr("usage summary", err)
	}
	return out, nil
}
