package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Thought is a short user note.
type Thought struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	Category  *string   `db:"category" json:"category"`
	Tags      Tags      `db:"tags" json:"tags"`
	Pinned    bool      `db:"pinned" json:"pinned"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ThoughtFilter narrows thought listings.
type ThoughtFilter struct {
	Query  string
	Tag    string
	Pinned *bool
	Limit  int
	Offset int
}

// ThoughtUpdate carries the mutable thought fields; nil means unchanged.
type ThoughtUpdate struct {
	Content  *string
	Category *string
	Tags     *Tags
	Pinned   *bool
}

// Tags is stored as a jsonb array.
type Tags []string

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("tags: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*t = out
	return nil
}

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
