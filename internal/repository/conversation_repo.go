package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ ConversationRepository = (*PostgresConversationRepo)(nil)

const conversationColumns = `id, user_id, title, model, archived, created_at, updated_at`

const (
	listConversationsSQL = `
SELECT ` + conversationColumns + `
FROM conversations
WHERE user_id = $1 AND ($2 OR NOT archived)
ORDER BY updated_at DESC
LIMIT $3 OFFSET $4`

	insertConversationSQL = `
INSERT INTO conversations (user_id, title, model)
VALUES ($1, $2, $3)
RETURNING ` + conversationColumns

	getConversationSQL = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND user_id = $2`

	updateConversationSQL = `
UPDATE conversations SET
    title = coalesce($3, title),
    archived = coalesce($4, archived),
    updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING ` + conversationColumns

	deleteConversationSQL = `DELETE FROM conversations WHERE id = $1 AND user_id = $2`

	listMessagesSQL = `
SELECT id, conversation_id, role, content, model, created_at
FROM (
    SELECT id, conversation_id, role, content, model, created_at
    FROM conversation_messages
    WHERE conversation_id = $1
    ORDER BY created_at DESC
    LIMIT $2
) recent
ORDER BY created_at`

	insertMessageSQL = `
WITH touched AS (
    UPDATE conversations SET updated_at = now() WHERE id = $1
)
INSERT INTO conversation_messages (conversation_id, role, content, model)
VALUES ($1, $2, $3, $4)
RETURNING id, conversation_id, role, content, model, created_at`
)

// PostgresConversationRepo implements ConversationRepository.
type PostgresConversationRepo struct {
	db *sqlx.DB
}

func NewPostgresConversationRepo(db *sqlx.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

func (r *PostgresConversationRepo) List(ctx context.Context, userID string, includeArchived bool, limit, offset int) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	if err := r.db.SelectContext(ctx, &out, listConversationsSQL, userID, includeArchived, limit, offset); err != nil {
		return nil, wrapErr("list conversations", err)
	}
	return out, nil
}

func (r *PostgresConversationRepo) Create(ctx context.Context, userID, title string, model *string) (domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.QueryRowxContext(ctx, insertConversationSQL, userID, title, model).StructScan(&conv); err != nil {
		return domain.Conversation{}, wrapErr("create conversation", err)
	}
	return conv, nil
}

func (r *PostgresConversationRepo) Get(ctx context.Context, userID, id string) (domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.GetContext(ctx, &conv, getConversationSQL, id, userID); err != nil {
		return domain.Conversation{}, wrapIDErr("get conversation", err)
	}
	return conv, nil
}

func (r *PostgresConversationRepo) Update(ctx context.Context, userID, id string, update domain.ConversationUpdate) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.QueryRowxContext(ctx, updateConversationSQL, id, userID, update.Title, update.Archived).StructScan(&conv)
	if err != nil {
		return domain.Conversation{}, wrapIDErr("update conversation", err)
	}
	return conv, nil
}

func (r *PostgresConversationRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, deleteConversationSQL, id, userID)
	if err != nil {
		return wrapIDErr("delete conversation", err)
	}
	return requireAffected("delete conversation", res)
}

// Messages returns the newest limit messages in chronological order.
func (r *PostgresConversationRepo) Messages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	if err := r.db.SelectContext(ctx, &out, listMessagesSQL, conversationID, limit); err != nil {
		return nil, wrapIDErr("list messages", err)
	}
	return out, nil
}

func (r *PostgresConversationRepo) AppendMessage(ctx context.Context, conversationID, role, content string, model *string) (domain.Message, error) {
	var msg domain.Message
	if err := r.db.QueryRowxContext(ctx, insertMessageSQL, conversationID, role, content, model).StructScan(&msg); err != nil {
		return domain.Message{}, wrapIDErr(fmt.Sprintf("append %s message", role), err)
	}
	return msg, nil
}
