package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

var _ RPCRepository = (*PostgresRPCRepo)(nil)

// UserParam is injected from the authenticated caller for user-scoped functions.
const UserParam = "p_user_id"

// FunctionSpec is one entry of the RPC allow-list.
type FunctionSpec struct {
	Name string
	// Params are the named arguments accepted, in call order.
	Params     []string
	UserScoped bool
}

// Functions is the RPC allow-list keyed by function name.
type Functions map[string]FunctionSpec

// Lookup resolves a function by name.
func (f Functions) Lookup(name string) (FunctionSpec, error) {
	spec, ok := f[name]
	if !ok {
		return FunctionSpec{}, fmt.Errorf("%q: %w", name, domain.ErrUnknownFunction)
	}
	return spec, nil
}

// DefaultFunctions lists the database functions callable over RPC.
func DefaultFunctions() Functions {
	specs := []FunctionSpec{
		{Name: "get_user_stats", Params: []string{UserParam}, UserScoped: true},
		{Name: "search_thoughts", Params: []string{UserParam, "p_query", "p_limit"}, UserScoped: true},
		{Name: "get_recent_activity", Params: []string{UserParam, "p_days"}, UserScoped: true},
	}
	out := make(Functions, len(specs))
	for _, s := range specs {
		out[s.Name] = s
	}
	return out
}

// PostgresRPCRepo implements RPCRepository using named-argument calls.
type PostgresRPCRepo struct {
	db *sqlx.DB
}

func NewPostgresRPCRepo(db *sqlx.DB) *PostgresRPCRepo {
	return &PostgresRPCRepo{db: db}
}

// Call runs fn with the provided args. Params absent from args fall back to
// the function's defaults; keys outside Params are rejected.
func (r *PostgresRPCRepo) Call(ctx context.Context, fn FunctionSpec, args map[string]any) ([]byte, error) {
	query, values, err := buildCallSQL(fn, args)
	if err != nil {
		return nil, err
	}
	var out []byte
	if err := r.db.QueryRowContext(ctx, query, values...).Scan(&out); err != nil {
		return nil, wrapErr("call "+fn.Name, err)
	}
	return out, nil
}

func buildCallSQL(fn FunctionSpec, args map[string]any) (string, []any, error) {
	allowed := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		allowed[p] = true
	}
	for k := range args {
		if !allowed[k] {
			return "", nil, fmt.Errorf("argument %q to %s: %w", k, fn.Name, domain.ErrUnknownColumn)
		}
	}

	var (
		named  []string
		values []any
	)
	for _, p := range fn.Params {
		v, ok := args[p]
		if !ok {
			continue
		}
		bound, err := bindValue(v)
		if err != nil {
			return "", nil, fmt.Errorf("argument %q: %w", p, err)
		}
		values = append(values, bound)
		named = append(named, fmt.Sprintf("%s => $%d", quote(p), len(values)))
	}
	query := fmt.Sprintf("SELECT coalesce(json_agg(r), '[]'::json) FROM %s(%s) r", quote(fn.Name), strings.Join(named, ", "))
	return query, values, nil
}
