package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

func TestBuildListSQL(t *testing.T) {
	spec := DefaultTables()["thoughts"]
	query, args, err := buildListSQL(spec, "user-1", ListQuery{
		Filters: map[string]string{"pinned": "true", "category": "idea"},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   25,
		Offset:  50,
	})
	require.NoError(t, err)
	require.Equal(t,
		`SELECT coalesce(json_agg(t), '[]'::json) FROM (SELECT "id", "user_id", "content", "category", "tags", "pinned", "created_at", "updated_at" FROM "thoughts" WHERE "category"::text = $1 AND "pinned"::text = $2 AND "user_id" = $3 ORDER BY "created_at" DESC LIMIT $4 OFFSET $5) t`,
		query)
	require.Equal(t, []any{"idea", "true", "user-1", 25, 50}, args)
}

func TestBuildListSQLRejectsUnknownColumns(t *testing.T) {
	spec := DefaultTables()["conversations"]

	_, _, err := buildListSQL(spec, "u", ListQuery{Filters: map[string]string{"password": "x"}})
	require.ErrorIs(t, err, domain.ErrUnknownColumn)

	_, _, err = buildListSQL(spec, "u", ListQuery{OrderBy: "title; drop table x"})
	require.ErrorIs(t, err, domain.ErrUnknownColumn)
}

func TestTablesLookup(t *testing.T) {
	_, err := DefaultTables().Lookup("oauth_tokens")
	require.ErrorIs(t, err, domain.ErrUnknownTable)
}

func TestTableRepoList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTableRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "conversations" WHERE "user_id" = $1 ORDER BY "updated_at" ASC LIMIT $2 OFFSET $3`)).
		WithArgs("user-1", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow([]byte(`[{"id":"c1"}]`)))

	out, err := repo.List(context.Background(), DefaultTables()["conversations"], "user-1", ListQuery{Limit: 50})
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"c1"}]`, string(out))
}

func TestTableRepoInsertScopesOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTableRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WITH r AS (INSERT INTO "thoughts" ("content", "tags", "user_id") VALUES ($1, $2, $3)`)).
		WithArgs("hello", `["a","b"]`, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}).AddRow([]byte(`{"id":"t1","content":"hello"}`)))

	out, err := repo.Insert(context.Background(), DefaultTables()["thoughts"], "user-1", map[string]any{
		"content": "hello",
		"tags":    []any{"a", "b"},
	})
	require.NoError(t, err)
	require.Contains(t, string(out), `"t1"`)
}

func TestTableRepoInsertRejectsOwnerColumn(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewPostgresTableRepo(db)

	_, err := repo.Insert(context.Background(), DefaultTables()["thoughts"], "user-1", map[string]any{"user_id": "someone-else"})
	require.ErrorIs(t, err, domain.ErrUnknownColumn)
}

func TestTableRepoWritesToReadOnlyTable(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewPostgresTableRepo(db)
	spec := DefaultTables()["usage_events"]

	_, err := repo.Update(context.Background(), spec, "u", "id", map[string]any{"model": "x"})
	require.ErrorIs(t, err, domain.ErrReadOnly)
	require.ErrorIs(t, repo.Delete(context.Background(), spec, "u", "id"), domain.ErrReadOnly)
}

func TestTableRepoUpdateNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTableRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "conversations" SET "title" = $1, "updated_at" = now() WHERE "id"::text = $2 AND "user_id" = $3`)).
		WithArgs("Renamed", "c1", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), DefaultTables()["conversations"], "user-1", "c1", map[string]any{"title": "Renamed"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTableRepoDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTableRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "documents" WHERE "id"::text = $1 AND "user_id" = $2`)).
		WithArgs("d1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), DefaultTables()["documents"], "user-1", "d1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTableRepoWriteWithMalformedValueIsInvalid(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTableRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WITH r AS (UPDATE "thoughts"`)).
		WillReturnError(&pgconn.PgError{Code: pgInvalidText, Message: `invalid input syntax for type boolean: "maybe"`})

	_, err := repo.Update(context.Background(), DefaultTables()["thoughts"], "user-1", "t1", map[string]any{"pinned": "maybe"})
	require.ErrorIs(t, err, domain.ErrInvalidValue)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}
