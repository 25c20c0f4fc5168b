package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ TableRepository = (*PostgresTableRepo)(nil)

// TableSpec is one entry of the generic CRUD allow-list.
type TableSpec struct {
	Name string
	// Columns are readable and filterable; the first is the primary key.
	Columns  []string
	Writable []string
	// OwnerColumn scopes every statement to the caller when set.
	OwnerColumn string
	OrderBy     string
	ReadOnly    bool
}

// HasColumn reports whether c may be read or filtered on.
func (t TableSpec) HasColumn(c string) bool {
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// CanWrite reports whether c may be set by callers.
func (t TableSpec) CanWrite(c string) bool {
	for _, col := range t.Writable {
		if col == c {
			return true
		}
	}
	return false
}

func (t TableSpec) key() string {
	return t.Columns[0]
}

// Tables is the CRUD allow-list keyed by table name.
type Tables map[string]TableSpec

// Lookup resolves a table by name.
func (t Tables) Lookup(name string) (TableSpec, error) {
	spec, ok := t[name]
	if !ok {
		return TableSpec{}, fmt.Errorf("%q: %w", name, domain.ErrUnknownTable)
	}
	return spec, nil
}

// DefaultTables lists the tables exposed through the generic CRUD routes.
func DefaultTables() Tables {
	specs := []TableSpec{
		{
			Name:        "conversations",
			Columns:     []string{"id", "user_id", "title", "model", "archived", "created_at", "updated_at"},
			Writable:    []string{"title", "model", "archived"},
			OwnerColumn: "user_id",
			OrderBy:     "updated_at",
		},
		{
			Name:        "thoughts",
			Columns:     []string{"id", "user_id", "content", "category", "tags", "pinned", "created_at", "updated_at"},
			Writable:    []string{"content", "category", "tags", "pinned"},
			OwnerColumn: "user_id",
			OrderBy:     "created_at",
		},
		{
			Name:        "user_integrations",
			Columns:     []string{"id", "user_id", "integration_slug", "status", "external_email", "external_name", "account_name", "connected_at", "last_synced_at"},
			OwnerColumn: "user_id",
			OrderBy:     "integration_slug",
			ReadOnly:    true,
		},
		{
			Name:     "integrations",
			Columns:  []string{"slug", "name", "category", "auth_type", "description", "enabled"},
			OrderBy:  "name",
			ReadOnly: true,
		},
		{
			Name:        "documents",
			Columns:     []string{"id", "user_id", "title", "content", "metadata", "created_at"},
			Writable:    []string{"title", "metadata"},
			OwnerColumn: "user_id",
			OrderBy:     "created_at",
		},
		{
			Name:        "usage_events",
			Columns:     []string{"id", "user_id", "conversation_id", "model", "prompt_tokens", "completion_tokens", "total_tokens", "created_at"},
			OwnerColumn: "user_id",
			OrderBy:     "created_at",
			ReadOnly:    true,
		},
		{
			Name:        "user_profiles",
			Columns:     []string{"id", "email", "display_name", "avatar_url", "company_id", "role", "created_at", "updated_at"},
			Writable:    []string{"display_name", "avatar_url"},
			OwnerColumn: "id",
			OrderBy:     "created_at",
		},
	}
	out := make(Tables, len(specs))
	for _, s := range specs {
		out[s.Name] = s
	}
	return out
}

// ListQuery captures the listing options accepted by the CRUD routes.
type ListQuery struct {
	Filters map[string]string
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// PostgresTableRepo implements TableRepository. Identifiers come from the
// allow-list and are quoted; every value is a bind parameter.
type PostgresTableRepo struct {
	db *sqlx.DB
}

func NewPostgresTableRepo(db *sqlx.DB) *PostgresTableRepo {
	return &PostgresTableRepo{db: db}
}

func (r *PostgresTableRepo) List(ctx context.Context, t TableSpec, ownerID string, q ListQuery) ([]byte, error) {
	query, args, err := buildListSQL(t, ownerID, q)
	if err != nil {
		return nil, err
	}
	return r.queryJSON(ctx, "list "+t.Name, query, args)
}

func (r *PostgresTableRepo) Get(ctx context.Context, t TableSpec, ownerID, id string) ([]byte, error) {
	where, args := scopeWhere(t, ownerID, []any{id}, []string{quote(t.key()) + "::text = $1"})
	query := fmt.Sprintf("SELECT row_to_json(t) FROM (SELECT %s FROM %s WHERE %s) t",
		columnList(t.Columns), quote(t.Name), where)
	return r.queryJSON(ctx, "get "+t.Name, query, args)
}

func (r *PostgresTableRepo) Insert(ctx context.Context, t TableSpec, ownerID string, values map[string]any) ([]byte, error) {
	if t.ReadOnly {
		return nil, fmt.Errorf("insert %s: %w", t.Name, domain.ErrReadOnly)
	}
	cols, args, err := writableValues(t, values)
	if err != nil {
		return nil, err
	}
	if t.OwnerColumn != "" {
		cols = append(cols, t.OwnerColumn)
		args = append(args, ownerID)
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("WITH r AS (INSERT INTO %s (%s) VALUES (%s) RETURNING %s) SELECT row_to_json(r) FROM r",
		quote(t.Name), columnList(cols), strings.Join(placeholders, ", "), columnList(t.Columns))
	return r.queryJSON(ctx, "insert "+t.Name, query, args)
}

func (r *PostgresTableRepo) Update(ctx context.Context, t TableSpec, ownerID, id string, values map[string]any) ([]byte, error) {
	if t.ReadOnly {
		return nil, fmt.Errorf("update %s: %w", t.Name, domain.ErrReadOnly)
	}
	cols, args, err := writableValues(t, values)
	if err != nil {
		return nil, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quote(c), i+1)
	}
	if t.HasColumn("updated_at") {
		sets = append(sets, `"updated_at" = now()`)
	}
	args = append(args, id)
	where, args := scopeWhere(t, ownerID, args, []string{fmt.Sprintf("%s::text = $%d", quote(t.key()), len(args))})
	query := fmt.Sprintf("WITH r AS (UPDATE %s SET %s WHERE %s RETURNING %s) SELECT row_to_json(r) FROM r",
		quote(t.Name), strings.Join(sets, ", "), where, columnList(t.Columns))
	return r.queryJSON(ctx, "update "+t.Name, query, args)
}

func (r *PostgresTableRepo) Delete(ctx context.Context, t TableSpec, ownerID, id string) error {
	if t.ReadOnly {
		return fmt.Errorf("delete %s: %w", t.Name, domain.ErrReadOnly)
	}
	where, args := scopeWhere(t, ownerID, []any{id}, []string{quote(t.key()) + "::text = $1"})
	res, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", quote(t.Name), where), args...)
	if err != nil {
		return wrapErr("delete "+t.Name, err)
	}
	return requireAffected("delete "+t.Name, res)
}

func (r *PostgresTableRepo) queryJSON(ctx context.Context, op, query string, args []any) ([]byte, error) {
	var out []byte
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&out); err != nil {
		return nil, wrapErr(op, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return out, nil
}

func buildListSQL(t TableSpec, ownerID string, q ListQuery) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, col := range keys {
		if !t.HasColumn(col) {
			return "", nil, fmt.Errorf("filter %q: %w", col, domain.ErrUnknownColumn)
		}
		args = append(args, q.Filters[col])
		conds = append(conds, fmt.Sprintf("%s::text = $%d", quote(col), len(args)))
	}
	where, args := scopeWhere(t, ownerID, args, conds)

	order := t.OrderBy
	if q.OrderBy != "" {
		if !t.HasColumn(q.OrderBy) {
			return "", nil, fmt.Errorf("order %q: %w", q.OrderBy, domain.ErrUnknownColumn)
		}
		order = q.OrderBy
	}
	if order == "" {
		order = t.key()
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}

	args = append(args, q.Limit, q.Offset)
	inner := fmt.Sprintf("SELECT %s FROM %s", columnList(t.Columns), quote(t.Name))
	if where != "" {
		inner += " WHERE " + where
	}
	inner += fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", quote(order), dir, len(args)-1, len(args))
	return fmt.Sprintf("SELECT coalesce(json_agg(t), '[]'::json) FROM (%s) t", inner), args, nil
}

// scopeWhere appends the owner condition when the table has one.
func scopeWhere(t TableSpec, ownerID string, args []any, conds []string) (string, []any) {
	if t.OwnerColumn != "" {
		args = append(args, ownerID)
		conds = append(conds, fmt.Sprintf("%s = $%d", quote(t.OwnerColumn), len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func writableValues(t TableSpec, values map[string]any) ([]string, []any, error) {
	if len(values) == 0 {
		return nil, nil, fmt.Errorf("no writable columns in %s: %w", t.Name, domain.ErrUnknownColumn)
	}
	cols := make([]string, 0, len(values))
	for c := range values {
		if !t.CanWrite(c) {
			return nil, nil, fmt.Errorf("column %q: %w", c, domain.ErrUnknownColumn)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := bindValue(values[c])
		if err != nil {
			return nil, nil, fmt.Errorf("column %q: %w", c, err)
		}
		args[i] = v
	}
	return cols, args, nil
}

// bindValue passes scalars through and encodes objects and arrays as JSON text.
func bindValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}
