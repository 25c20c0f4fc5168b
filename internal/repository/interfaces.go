package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/domain/oauth"
)

// ProfileRepository maps Authentik subjects onto local profiles.
type ProfileRepository interface {
	UpsertFromPrincipal(ctx context.Context, principal domain.Principal) (domain.Profile, error)
	Memberships(ctx context.Context, userID string) ([]domain.Membership, error)
}

// OrganizationRepository exposes companies and their members.
type OrganizationRepository interface {
	Create(ctx context.Context, ownerID string, company domain.Company) (domain.Company, error)
	Get(ctx context.Context, companyID string) (domain.Company, error)
	Update(ctx context.Context, companyID string, update domain.CompanyUpdate) (domain.Company, error)
	Membership(ctx context.Context, companyID, userID string) (domain.Membership, error)
	Members(ctx context.Context, companyID string) ([]domain.Member, error)
}

// ConversationRepository persists chat history.
type ConversationRepository interface {
	List(ctx context.Context, userID string, includeArchived bool, limit, offset int) ([]domain.Conversation, error)
	Create(ctx context.Context, userID, title string, model *string) (domain.Conversation, error)
	Get(ctx context.Context, userID, id string) (domain.Conversation, error)
	Update(ctx context.Context, userID, id string, update domain.ConversationUpdate) (domain.Conversation, error)
	Delete(ctx context.Context, userID, id string) error
	Messages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	AppendMessage(ctx context.Context, conversationID, role, content string, model *string) (domain.Message, error)
}

// ThoughtRepository persists user notes.
type ThoughtRepository interface {
	List(ctx context.Context, userID string, filter domain.ThoughtFilter) ([]domain.Thought, error)
	Create(ctx context.Context, thought domain.Thought) (domain.Thought, error)
	Get(ctx context.Context, userID, id string) (domain.Thought, error)
	Update(ctx context.Context, userID, id string, update domain.ThoughtUpdate) (domain.Thought, error)
	Delete(ctx context.Context, userID, id string) error
}

// IntegrationRepository exposes the integration catalog.
type IntegrationRepository interface {
	Catalog(ctx context.Context, userID string) ([]domain.IntegrationStatus, error)
	Get(ctx context.Context, userID, slug string) (domain.IntegrationStatus, error)
	Seed(ctx context.Context, integrations []domain.Integration) error
}

// ConnectionRepository stores provider tokens and the connection rows derived from them.
type ConnectionRepository interface {
	SaveConnection(ctx context.Context, conn domain.UserIntegration, token SealedToken) error
	GetToken(ctx context.Context, userID, slug string) (SealedToken, error)
	SaveToken(ctx context.Context, userID, slug string, token SealedToken) error
	MarkSynced(ctx context.Context, conn domain.UserIntegration, syncedAt time.Time) error
	MarkStatus(ctx context.Context, userID, slug, status string) error
	List(ctx context.Context, userID string) ([]domain.UserIntegration, error)
	Delete(ctx context.Context, userID, slug string) error
}

// SealedToken is a provider token whose secrets are already encrypted.
type SealedToken struct {
	AccessToken  string     `db:"access_token"`
	RefreshToken *string    `db:"refresh_token"`
	TokenType    *string    `db:"token_type"`
	Scope        *string    `db:"scope"`
	ExpiresAt    *time.Time `db:"expires_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// OAuthStateStore holds in-flight authorization states between start and callback.
type OAuthStateStore interface {
	SaveState(ctx context.Context, key string, state oauth.State, ttl time.Duration) error
	// ConsumeState returns and removes the state; nil means unknown or already used.
	ConsumeState(ctx context.Context, key string) (*oauth.State, error)
}

// TableRepository runs allow-listed CRUD against arbitrary tables.
type TableRepository interface {
	List(ctx context.Context, table TableSpec, ownerID string, query ListQuery) ([]byte, error)
	Get(ctx context.Context, table TableSpec, ownerID, id string) ([]byte, error)
	Insert(ctx context.Context, table TableSpec, ownerID string, values map[string]any) ([]byte, error)
	Update(ctx context.Context, table TableSpec, ownerID, id string, values map[string]any) ([]byte, error)
	Delete(ctx context.Context, table TableSpec, ownerID, id string) error
}

// RPCRepository invokes allow-listed database functions.
type RPCRepository interface {
	Call(ctx context.Context, fn FunctionSpec, args map[string]any) ([]byte, error)
}

// PushTokenRepository stores device tokens.
type PushTokenRepository interface {
	Upsert(ctx context.Context, token domain.PushToken) error
	Delete(ctx context.Context, userID, token string) error
	ForUser(ctx context.Context, userID string) ([]string, error)
}

// AuditRepository appends and lists audit entries.
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

// UsageRepository records and summarizes chat usage.
type UsageRepository interface {
	Record(ctx context.Context, event domain.UsageEvent) error
	Summary(ctx context.Context, filter domain.UsageFilter) ([]domain.UsageBucket, error)
}

// DocumentRepository stores embedded documents for similarity search.
type DocumentRepository interface {
	Insert(ctx context.Context, doc domain.Document, embedding []float32) (domain.Document, error)
	Search(ctx context.Context, userID string, embedding []float32, limit int, threshold float64) ([]domain.DocumentMatch, error)
	Delete(ctx context.Context, userID, id string) error
}
