package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ DocumentRepository = (*PostgresDocumentRepo)(nil)

const (
	insertDocumentSQL = `
INSERT INTO documents (user_id, title, content, metadata, embedding)
VALUES ($1, $2, $3, coalesce($4::jsonb, '{}'::jsonb), $5::vector)
RETURNING id, user_id, title, content, metadata, created_at`

	searchDocumentsSQL = `
SELECT id, user_id, title, content, metadata, created_at, similarity
FROM (
    SELECT id, user_id, title, content, metadata, created_at,
           1 - (embedding <=> $2::vector) AS similarity
    FROM documents
    WHERE user_id = $1
) scored
WHERE similarity >= $4
ORDER BY similarity DESC
LIMIT $3`

	deleteDocumentSQL = `DELETE FROM documents WHERE id = $1 AND user_id = $2`
)

// PostgresDocumentRepo implements DocumentRepository on pgvector.
type PostgresDocumentRepo struct {
	db *sqlx.DB
}

func NewPostgresDocumentRepo(db *sqlx.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

func (r *PostgresDocumentRepo) Insert(ctx context.Context, doc domain.Document, embedding []float32) (domain.Document, error) {
	var out domain.Document
	err := r.db.QueryRowxContext(ctx, insertDocumentSQL,
		doc.UserID, doc.Title, doc.Content, doc.Metadata, vectorLiteral(embedding),
	).StructScan(&out)
	if err != nil {
		return domain.Document{}, wrapErr("insert document", err)
	}
	return out, nil
}

func (r *PostgresDocumentRepo) Search(ctx context.Context, userID string, embedding []float32, limit int, threshold float64) ([]domain.DocumentMatch, error) {
	out := []domain.DocumentMatch{}
	if err := r.db.SelectContext(ctx, &out, searchDocumentsSQL, userID, vectorLiteral(embedding), limit, threshold); err != nil {
		return nil, wrapErr("search documents", err)
	}
	return out, nil
}

func (r *PostgresDocumentRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, deleteDocumentSQL, id, userID)
	if err != nil {
		return wrapIDErr("delete document", err)
	}
	return requireAffected("delete document", res)
}

// vectorLiteral renders the pgvector text form, e.g. [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
