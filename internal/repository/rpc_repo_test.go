package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

func TestBuildCallSQL(t *testing.T) {
	fn := DefaultFunctions()["search_thoughts"]

	query, values, err := buildCallSQL(fn, map[string]any{"p_query": "plan", UserParam: "user-1"})
	require.NoError(t, err)
	require.Equal(t, `SELECT coalesce(json_agg(r), '[]'::json) FROM "search_thoughts"("p_user_id" => $1, "p_query" => $2) r`, query)
	require.Equal(t, []any{"user-1", "plan"}, values)

	_, _, err = buildCallSQL(fn, map[string]any{"p_other": 1})
	require.ErrorIs(t, err, domain.ErrUnknownColumn)
}

func TestFunctionsLookup(t *testing.T) {
	_, err := DefaultFunctions().Lookup("pg_sleep")
	require.ErrorIs(t, err, domain.ErrUnknownFunction)
}

func TestRPCRepoCall(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRPCRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "get_user_stats"("p_user_id" => $1) r`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(`[{"conversations":3}]`))

	out, err := repo.Call(context.Background(), DefaultFunctions()["get_user_stats"], map[string]any{UserParam: "user-1"})
	require.NoError(t, err)
	require.JSONEq(t, `[{"conversations":3}]`, string(out))
}
