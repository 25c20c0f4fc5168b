package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var integrationColumns = []string{
	"slug", "name", "category", "auth_type", "description", "enabled",
	"status", "external_email", "connected_at", "last_synced_at",
}

func TestIntegrationCatalogJoinsCallerStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIntegrationRepo(db)
	connected := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN user_integrations ui")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(integrationColumns).
			AddRow("hubspot", "HubSpot", "crm", "oauth2", "", true, nil, nil, nil, nil).
			AddRow("slack", "Slack", "communication", "oauth2", "", true, domain.IntegrationConnected, "me@example.com", connected, nil))

	items, err := repo.Catalog(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Nil(t, items[0].Status)
	require.Equal(t, domain.IntegrationConnected, *items[1].Status)
	require.Equal(t, "me@example.com", *items[1].ExternalEmail)
	require.Equal(t, connected, *items[1].ConnectedAt)
}

func TestIntegrationCatalogEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIntegrationRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.enabled")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(integrationColumns))

	items, err := repo.Catalog(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestIntegrationGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIntegrationRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.slug = $2")).
		WithArgs("user-1", "dropbox").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "user-1", "dropbox")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegrationSeedUpsertsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresIntegrationRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO integrations")).
		WithArgs("slack", "Slack", "communication", "oauth2", "", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO integrations")).
		WithArgs("paypal", "PayPal", "payments", "oauth2", "", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Seed(context.Background(), []domain.Integration{
		{Slug: "slack", Name: "Slack", Category: "communication", AuthType: "oauth2", Enabled: true},
		{Slug: "paypal", Name: "PayPal", Category: "payments", AuthType: "oauth2"},
	})
	require.NoError(t, err)
}

func TestIntegrationSeedNothing(t *testing.T) {
	db, _ := newMockDB(t)
	require.NoError(t, NewPostgresIntegrationRepo(db).Seed(context.Background(), nil))
}
