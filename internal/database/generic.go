package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vegdirect/storefront/internal/supabase"
)

// =============================================================================
// Query specification
// =============================================================================

type order struct {
	column string
	dir    supabase.OrderDirection
}

type filter struct {
	column string
	op     supabase.FilterOperator
	value  string
}

// Query is a built list specification.
type Query struct {
	filters    []filter
	inFilters  map[string][]string
	orFilters  []string
	orders     []order
	limit      int
	offset     int
	withCount  bool
	userToken  string
	selectCols []string
}

// QuerySpec accumulates a Query.
type QuerySpec struct {
	q Query
}

// NewQuery starts a list specification.
func NewQuery() *QuerySpec {
	return &QuerySpec{q: Query{limit: -1, offset: -1, inFilters: map[string][]string{}}}
}

// Select restricts returned columns.
func (s *QuerySpec) Select(columns ...string) *QuerySpec {
	s.q.selectCols = columns
	return s
}

// Eq filters column = value.
func (s *QuerySpec) Eq(column, value string) *QuerySpec {
	s.q.filters = append(s.q.filters, filter{column, supabase.OpEq, value})
	return s
}

// Neq filters column != value.
func (s *QuerySpec) Neq(column, value string) *QuerySpec {
	s.q.filters = append(s.q.filters, filter{column, supabase.OpNeq, value})
	return s
}

// Gte filters column >= value.
func (s *QuerySpec) Gte(column, value string) *QuerySpec {
	s.q.filters = append(s.q.filters, filter{column, supabase.OpGte, value})
	return s
}

// Lte filters column <= value.
func (s *QuerySpec) Lte(column, value string) *QuerySpec {
	s.q.filters = append(s.q.filters, filter{column, supabase.OpLte, value})
	return s
}

// Lt filters column < value.
func (s *QuerySpec) Lt(column, value string) *QuerySpec {
	s.q.filters = append(s.q.filters, filter{column, supabase.OpLt, value})
	return s
}

// ILike filters with a case-insensitive pattern.
func (s *QuerySpec) ILike(column, pattern string) *QuerySpec {
	s.q.filters = append(s.q.filters, filter{column, supabase.OpILike, pattern})
	return s
}

// In filters column to a value set.
func (s *QuerySpec) In(column string, values ...string) *QuerySpec {
	s.q.inFilters[column] = values
	return s
}

// Or adds a raw disjunction, e.g. "name.ilike.*cải*,name_en.ilike.*cabbage*".
func (s *QuerySpec) Or(raw string) *QuerySpec {
	s.q.orFilters = append(s.q.orFilters, raw)
	return s
}

// OrderAsc sorts ascending by column.
func (s *QuerySpec) OrderAsc(column string) *QuerySpec {
	s.q.orders = append(s.q.orders, order{column, supabase.OrderAsc})
	return s
}

// OrderDesc sorts descending by column.
func (s *QuerySpec) OrderDesc(column string) *QuerySpec {
	s.q.orders = append(s.q.orders, order{column, supabase.OrderDesc})
	return s
}

// Limit caps the row count.
func (s *QuerySpec) Limit(n int) *QuerySpec {
	s.q.limit = n
	return s
}

// Offset skips n rows.
func (s *QuerySpec) Offset(n int) *QuerySpec {
	s.q.offset = n
	return s
}

// WithCount requests an exact total alongside the rows.
func (s *QuerySpec) WithCount() *QuerySpec {
	s.q.withCount = true
	return s
}

// WithToken scopes the query to an end-user session.
func (s *QuerySpec) WithToken(token string) *QuerySpec {
	s.q.userToken = token
	return s
}

// Build finalizes the specification.
func (s *QuerySpec) Build() Query {
	return s.q
}

func applyQuery(b *supabase.QueryBuilder, q Query) *supabase.QueryBuilder {
	if len(q.selectCols) > 0 {
		b = b.Select(q.selectCols...)
	} else {
		b = b.Select()
	}
	for _, f := range q.filters {
		b = b.Filter(f.column, f.op, f.value)
	}
	for column, values := range q.inFilters {
		b = b.In(column, values...)
	}
	for _, raw := range q.orFilters {
		b = b.Or(raw)
	}
	for _, o := range q.orders {
		b = b.Order(o.column, o.dir)
	}
	if q.limit >= 0 {
		b = b.Limit(q.limit)
	}
	if q.offset >= 0 {
		b = b.Offset(q.offset)
	}
	if q.withCount {
		b = b.Count()
	}
	if q.userToken != "" {
		b = b.WithToken(q.userToken)
	}
	return b
}

// =============================================================================
// Generic operations
// =============================================================================

// GenericCreate inserts record into table and hands the returned rows to
// assign so the caller can adopt server-generated fields.
func GenericCreate[T any](r *Repository, ctx context.Context, table string, record any, assign func(rows []T)) error {
	var rows []T
	_, err := r.client.DB.From(table).Insert(record).ExecuteInto(ctx, &rows)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrDatabaseError, table, err)
	}
	if assign != nil {
		assign(rows)
	}
	return nil
}

// affectedRows counts rows in a representation payload. The backend
// answers 200 with an empty array when no row matched the filter.
func affectedRows(data []byte) int {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0
	}
	return len(rows)
}

// GenericUpdate patches the rows where field = value with record.
func GenericUpdate(r *Repository, ctx context.Context, table, field, value string, record any) error {
	data, _, err := r.client.DB.From(table).Update(record).Eq(field, value).Execute(ctx)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrDatabaseError, table, err)
	}
	if affectedRows(data) == 0 {
		return fmt.Errorf("%w: %s %s=%s", ErrNotFound, table, field, value)
	}
	return nil
}

// GenericDelete removes the rows where field = value.
func GenericDelete(r *Repository, ctx context.Context, table, field, value string) error {
	data, _, err := r.client.DB.From(table).Delete().Eq(field, value).Execute(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrDatabaseError, table, err)
	}
	if affectedRows(data) == 0 {
		return fmt.Errorf("%w: %s %s=%s", ErrNotFound, table, field, value)
	}
	return nil
}

// GenericGetByField fetches the single row where field = value.
func GenericGetByField[T any](r *Repository, ctx context.Context, table, field, value string) (*T, error) {
	var row T
	_, err := r.client.DB.From(table).Select().Eq(field, value).Single().ExecuteInto(ctx, &row)
	if err != nil {
		if se := supabase.AsError(err); se != nil && se.IsNotFound() {
			return nil, fmt.Errorf("%w: %s %s=%s", ErrNotFound, table, field, value)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrDatabaseError, table, err)
	}
	return &row, nil
}

// GenericListByField lists the rows where field = value.
func GenericListByField[T any](r *Repository, ctx context.Context, table, field, value string) ([]T, error) {
	var rows []T
	_, err := r.client.DB.From(table).Select().Eq(field, value).ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrDatabaseError, table, err)
	}
	return rows, nil
}

// GenericListWithQuery lists rows matching a built Query.
func GenericListWithQuery[T any](r *Repository, ctx context.Context, table string, q Query) ([]T, error) {
	rows, _, err := GenericListPage[T](r, ctx, table, q)
	return rows, err
}

// GenericListPage lists rows matching q and returns the exact total when
// the query asked for one (-1 otherwise).
func GenericListPage[T any](r *Repository, ctx context.Context, table string, q Query) ([]T, int64, error) {
	var rows []T
	total, err := applyQuery(r.client.DB.From(table), q).ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: list %s: %v", ErrDatabaseError, table, err)
	}
	return rows, total, nil
}

// GenericUpsert inserts records, merging on the onConflict columns.
func GenericUpsert[T any](r *Repository, ctx context.Context, table string, record any, onConflict string, assign func(rows []T)) error {
	var rows []T
	_, err := r.client.DB.From(table).Upsert(record, onConflict).ExecuteInto(ctx, &rows)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrDatabaseError, table, err)
	}
	if assign != nil {
		assign(rows)
	}
	return nil
}
