package domain

import "time"

// Connection statuses stored in user_integrations.
const (
	IntegrationConnected    = "connected"
	IntegrationDisconnected = "disconnected"
	IntegrationError        = "error"
)

// Integration is a catalog entry a user can connect.
type Integration struct {
	Slug        string `db:"slug" json:"slug"`
	Name        string `db:"name" json:"name"`
	Category    string `db:"category" json:"category"`
	AuthType    string `db:"auth_type" json:"auth_type"`
	Description string `db:"description" json:"description"`
	Enabled     bool   `db:"enabled" json:"enabled"`
}

// IntegrationStatus is a catalog entry joined with the caller's connection.
type IntegrationStatus struct {
	Integration
	Status        *string    `db:"status" json:"status"`
	ExternalEmail *string    `db:"external_email" json:"external_email"`
	ConnectedAt   *time.Time `db:"connected_at" json:"connected_at"`
	LastSyncedAt  *time.Time `db:"last_synced_at" json:"last_synced_at"`
}

// UserIntegration is one user's connection to a provider.
type UserIntegration struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	IntegrationSlug string     `db:"integration_slug" json:"integration_slug"`
	Status          string     `db:"status" json:"status"`
	ExternalID      *string    `db:"external_id" json:"external_id"`
	ExternalEmail   *string    `db:"external_email" json:"external_email"`
	ExternalName    *string    `db:"external_name" json:"external_name"`
	AccountID       *string    `db:"account_id" json:"account_id"`
	AccountName     *string    `db:"account_name" json:"account_name"`
	Metadata        JSON       `db:"metadata" json:"metadata"`
	ConnectedAt     time.Time  `db:"connected_at" json:"connected_at"`
	LastSyncedAt    *time.Time `db:"last_synced_at" json:"last_synced_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
