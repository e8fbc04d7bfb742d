package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DatabaseClient exposes PostgREST row storage.
type DatabaseClient struct {
	client *Client
}

// From starts a query against table.
func (d *DatabaseClient) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: d.client,
		table:  table,
		method: http.MethodGet,
		params: url.Values{},
	}
}

// RPC invokes a database function with the service key and decodes the
// result into dest when dest is non-nil.
func (d *DatabaseClient) RPC(ctx context.Context, fn string, params any, dest any) error {
	return d.rpc(ctx, "", fn, params, dest)
}

// RPCWithToken invokes a database function on behalf of an end user.
func (d *DatabaseClient) RPCWithToken(ctx context.Context, token, fn string, params any, dest any) error {
	return d.rpc(ctx, token, fn, params, dest)
}

func (d *DatabaseClient) rpc(ctx context.Context, token, fn string, params any, dest any) error {
	if params == nil {
		params = map[string]any{}
	}
	body, err := jsonBody(params)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/rpc/%s", d.client.restURL, url.PathEscape(fn))

	var resp *http.Response
	if token != "" {
		resp, err = d.client.requestWithToken(ctx, token, http.MethodPost, endpoint, body, nil)
	} else if d.client.HasServiceKey() {
		resp, err = d.client.requestWithServiceKey(ctx, http.MethodPost, endpoint, body, nil)
	} else {
		resp, err = d.client.request(ctx, http.MethodPost, endpoint, body, nil)
	}
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return err
	}
	if dest == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("supabase: decode rpc %s result: %w", fn, err)
	}
	return nil
}

// =============================================================================
// Query builder
// =============================================================================

// QueryBuilder accumulates a single PostgREST request.
type QueryBuilder struct {
	client *Client
	table  string

	method string
	body   any
	params url.Values
	prefer []string

	token      string
	serviceKey bool
	single     bool
	count      bool
	err        error
}

// Select names the returned columns; "*" when never called.
func (q *QueryBuilder) Select(columns ...string) *QueryBuilder {
	if len(columns) == 0 {
		q.params.Set("select", "*")
	} else {
		q.params.Set("select", strings.Join(columns, ","))
	}
	return q
}

// Insert switches the query to row creation.
func (q *QueryBuilder) Insert(value any) *QueryBuilder {
	q.method = http.MethodPost
	q.body = value
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Upsert inserts rows, merging on conflict with onConflict columns.
func (q *QueryBuilder) Upsert(value any, onConflict string) *QueryBuilder {
	q.method = http.MethodPost
	q.body = value
	q.prefer = append(q.prefer, "resolution=merge-duplicates", "return=representation")
	if onConflict != "" {
		q.params.Set("on_conflict", onConflict)
	}
	return q
}

// Update switches the query to a filtered PATCH.
func (q *QueryBuilder) Update(value any) *QueryBuilder {
	q.method = http.MethodPatch
	q.body = value
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Delete switches the query to a filtered DELETE.
func (q *QueryBuilder) Delete() *QueryBuilder {
	q.method = http.MethodDelete
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Minimal suppresses the representation echo on writes.
func (q *QueryBuilder) Minimal() *QueryBuilder {
	for i, p := range q.prefer {
		if p == "return=representation" {
			q.prefer[i] = "return=minimal"
			return q
		}
	}
	q.prefer = append(q.prefer, "return=minimal")
	return q
}

// Filter adds an arbitrary operator filter.
func (q *QueryBuilder) Filter(column string, op FilterOperator, value string) *QueryBuilder {
	q.params.Add(column, fmt.Sprintf("%s.%s", op, value))
	return q
}

// Eq filters column = value.
func (q *QueryBuilder) Eq(column, value string) *QueryBuilder {
	return q.Filter(column, OpEq, value)
}

// Neq filters column != value.
func (q *QueryBuilder) Neq(column, value string) *QueryBuilder {
	return q.Filter(column, OpNeq, value)
}

// Gt filters column > value.
func (q *QueryBuilder) Gt(column, value string) *QueryBuilder {
	return q.Filter(column, OpGt, value)
}

// Gte filters column >= value.
func (q *QueryBuilder) Gte(column, value string) *QueryBuilder {
	return q.Filter(column, OpGte, value)
}

// Lt filters column < value.
func (q *QueryBuilder) Lt(column, value string) *QueryBuilder {
	return q.Filter(column, OpLt, value)
}

// Lte filters column <= value.
func (q *QueryBuilder) Lte(column, value string) *QueryBuilder {
	return q.Filter(column, OpLte, value)
}

// ILike filters with a case-insensitive pattern.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.Filter(column, OpILike, pattern)
}

// Is filters against null/true/false.
func (q *QueryBuilder) Is(column, value string) *QueryBuilder {
	return q.Filter(column, OpIs, value)
}

// In filters column to a value set.
func (q *QueryBuilder) In(column string, values ...string) *QueryBuilder {
	q.params.Add(column, fmt.Sprintf("in.(%s)", strings.Join(values, ",")))
	return q
}

// Or adds a disjunction in raw PostgREST syntax,
// e.g. "status.eq.pending,status.eq.processing".
func (q *QueryBuilder) Or(filters string) *QueryBuilder {
	q.params.Add("or", fmt.Sprintf("(%s)", filters))
	return q
}

// Order sorts by column.
func (q *QueryBuilder) Order(column string, dir OrderDirection) *QueryBuilder {
	q.params.Add("order", fmt.Sprintf("%s.%s", column, dir))
	return q
}

// Limit caps the row count.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.params.Set("limit", fmt.Sprintf("%d", n))
	return q
}

// Offset skips n rows.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.params.Set("offset", fmt.Sprintf("%d", n))
	return q
}

// Single requests exactly one object; the backend answers 406 when the
// result is empty, surfaced as a not-found *Error.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count requests an exact total alongside the rows.
func (q *QueryBuilder) Count() *QueryBuilder {
	q.count = true
	q.prefer = append(q.prefer, "count=exact")
	return q
}

// WithToken scopes the request to an end-user session.
func (q *QueryBuilder) WithToken(token string) *QueryBuilder {
	q.token = token
	return q
}

// WithServiceKey forces the privileged key.
func (q *QueryBuilder) WithServiceKey() *QueryBuilder {
	q.serviceKey = true
	return q
}

func (q *QueryBuilder) buildURL() string {
	u := fmt.Sprintf("%s/%s", q.client.restURL, url.PathEscape(q.table))
	if encoded := q.params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func (q *QueryBuilder) buildHeaders() map[string]string {
	headers := map[string]string{}
	if len(q.prefer) > 0 {
		headers["Prefer"] = strings.Join(q.prefer, ",")
	}
	if q.single {
		headers["Accept"] = "application/vnd.pgrst.object+json"
	}
	return headers
}

// Execute runs the query and returns the raw JSON payload plus the exact
// total when Count was requested (-1 otherwise).
func (q *QueryBuilder) Execute(ctx context.Context) ([]byte, int64, error) {
	if q.err != nil {
		return nil, -1, q.err
	}
	var body *strings.Reader
	if q.body != nil {
		data, err := json.Marshal(q.body)
		if err != nil {
			return nil, -1, fmt.Errorf("supabase: marshal %s body: %w", q.table, err)
		}
		body = strings.NewReader(string(data))
	} else {
		body = strings.NewReader("")
	}

	endpoint := q.buildURL()
	headers := q.buildHeaders()

	var resp *http.Response
	var err error
	switch {
	case q.token != "":
		resp, err = q.client.requestWithToken(ctx, q.token, q.method, endpoint, body, headers)
	case q.serviceKey || q.client.HasServiceKey():
		resp, err = q.client.requestWithServiceKey(ctx, q.method, endpoint, body, headers)
	default:
		resp, err = q.client.request(ctx, q.method, endpoint, body, headers)
	}
	if err != nil {
		return nil, -1, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, -1, parseError(resp)
	}

	total := int64(-1)
	if q.count {
		total = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, -1, err
	}
	return data, total, nil
}

// ExecuteInto runs the query and decodes the payload into dest.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dest any) (int64, error) {
	data, total, err := q.Execute(ctx)
	if err != nil {
		return total, err
	}
	if dest == nil || len(data) == 0 {
		return total, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return total, fmt.Errorf("supabase: decode %s rows: %w", q.table, err)
	}
	return total, nil
}

// parseContentRangeTotal extracts the total from "0-24/3573" or "*/0".
func parseContentRangeTotal(header string) int64 {
	if header == "" {
		return -1
	}
	var start, end, total int64
	if _, err := fmt.Sscanf(header, "%d-%d/%d", &start, &end, &total); err == nil {
		return total
	}
	if _, err := fmt.Sscanf(header, "*/%d", &total); err == nil {
		return total
	}
	return -1
}
