package domain

import "time"

// Document is a stored text chunk with an embedding.
type Document struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     *string   `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Metadata  JSON      `db:"metadata" json:"metadata"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DocumentMatch is a search hit with cosine similarity.
type DocumentMatch struct {
	Document
	Similarity float64 `db:"similarity" json:"similarity"`
}
