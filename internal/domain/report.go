package domain

import "time"

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID           int64     `db:"id" json:"id,string"`
	ActorID      *string   `db:"actor_id" json:"actor_id"`
	Action       string    `db:"action" json:"action"`
	ResourceType string    `db:"resource_type" json:"resource_type"`
	ResourceID   *string   `db:"resource_id" json:"resource_id"`
	Metadata     JSON      `db:"metadata" json:"metadata"`
	IPAddress    *string   `db:"ip_address" json:"ip_address"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit listings. To is an exclusive upper bound.
type AuditFilter struct {
	Action       string
	ActorID      string
	ResourceType string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// UsageEvent records chat token consumption for one request.
type UsageEvent struct {
	UserID           string
	ConversationID   *string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UsageFilter narrows usage summaries. To is an exclusive upper bound.
type UsageFilter struct {
	UserID  string
	GroupBy string
	From    *time.Time
	To      *time.Time
}

// UsageBucket is one row of a usage summary.
type UsageBucket struct {
	Bucket           string `db:"bucket" json:"bucket"`
	Requests         int64  `db:"requests" json:"requests"`
	PromptTokens     int64  `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int64  `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int64  `db:"total_tokens" json:"total_tokens"`
}
