package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		ProjectURL: srv.URL,
		AnonKey:    "anon-key",
		ServiceKey: "service-key",
		Timeout:    5 * time.Second,
		Retry:      &RetryConfig{MaxRetries: 0},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{AnonKey: "k"}); err == nil {
		t.Error("expected error for missing project URL")
	}
	if _, err := NewClient(Config{ProjectURL: "https://x.supabase.co"}); err == nil {
		t.Error("expected error for missing anon key")
	}
	if _, err := NewClient(Config{ProjectURL: "ftp://x.supabase.co", AnonKey: "k"}); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestClientRejectsForeignHost(t *testing.T) {
	c, err := NewClient(Config{ProjectURL: "https://proj.supabase.co", AnonKey: "k"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.request(context.Background(), http.MethodGet, "https://evil.example.com/rest/v1/orders", nil, nil)
	if err == nil {
		t.Fatal("expected host rejection")
	}
}

func TestQueryBuilderSelect(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"p1","name":"Carrot"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	var rows []map[string]any
	_, err := c.DB.From("products").
		Select("id", "name").
		Eq("active", "true").
		Order("name", OrderAsc).
		Limit(20).
		Offset(40).
		ExecuteInto(context.Background(), &rows)
	if err != nil {
		t.Fatalf("ExecuteInto: %v", err)
	}
	if gotPath != "/rest/v1/products" {
		t.Errorf("path = %q", gotPath)
	}
	for _, want := range []string{"select=id%2Cname", "active=eq.true", "order=name.asc", "limit=20", "offset=40"} {
		if !containsParam(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotKey != "service-key" {
		t.Errorf("apikey = %q", gotKey)
	}
	if len(rows) != 1 || rows[0]["name"] != "Carrot" {
		t.Errorf("rows = %+v", rows)
	}
}

func containsParam(query, param string) bool {
	for i := 0; i+len(param) <= len(query); i++ {
		if query[i:i+len(param)] == param {
			return true
		}
	}
	return false
}

func TestQueryBuilderInsertSendsPreferHeader(t *testing.T) {
	var gotMethod, gotPrefer string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPrefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"o1"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	data, _, err := c.DB.From("orders").Insert(map[string]string{"number": "VD-1001"}).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s", gotMethod)
	}
	if gotPrefer != "return=representation" {
		t.Errorf("Prefer = %q", gotPrefer)
	}
	if gotBody["number"] != "VD-1001" {
		t.Errorf("body = %+v", gotBody)
	}
	if string(data) != `[{"id":"o1"}]` {
		t.Errorf("data = %s", data)
	}
}

func TestQueryBuilderSingleNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.pgrst.object+json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusNotAcceptable)
		w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.DB.From("orders").Select().Eq("id", "missing").Single().Execute(context.Background())
	se := AsError(err)
	if se == nil {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !se.IsNotFound() {
		t.Errorf("IsNotFound = false for status %d", se.StatusCode)
	}
	if se.Code != "PGRST116" {
		t.Errorf("Code = %q", se.Code)
	}
}

func TestQueryBuilderCountParsesContentRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "count=exact" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "0-19/57")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, total, err := c.DB.From("orders").Select().Count().Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if total != 57 {
		t.Errorf("total = %d, want 57", total)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	cases := []struct {
		header string
		want   int64
	}{
		{"0-24/3573", 3573},
		{"*/0", 0},
		{"*/12", 12},
		{"", -1},
		{"garbage", -1},
	}
	for _, tc := range cases {
		if got := parseContentRangeTotal(tc.header); got != tc.want {
			t.Errorf("parseContentRangeTotal(%q) = %d, want %d", tc.header, got, tc.want)
		}
	}
}

func TestRPCDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/dashboard_summary" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var params map[string]any
		json.NewDecoder(r.Body).Decode(&params)
		if params["day"] != "2026-08-25" {
			t.Errorf("params = %+v", params)
		}
		w.Write([]byte(`{"total_orders":12,"total_revenue":340000}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	var result struct {
		TotalOrders  int     `json:"total_orders"`
		TotalRevenue float64 `json:"total_revenue"`
	}
	err := c.DB.RPC(context.Background(), "dashboard_summary", map[string]string{"day": "2026-08-25"}, &result)
	if err != nil {
		t.Fatalf("RPC: %v", err)
	}
	if result.TotalOrders != 12 || result.TotalRevenue != 340000 {
		t.Errorf("result = %+v", result)
	}
}

func TestRPCMissingFunction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PGRST202","message":"Could not find the function public.dashboard_summary"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.DB.RPC(context.Background(), "dashboard_summary", nil, nil)
	se := AsError(err)
	if se == nil || !se.IsFunctionMissing() {
		t.Fatalf("expected function-missing error, got %v", err)
	}
}

func TestAuthSignInWithPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.URL.Path, r.URL.RawQuery)
		}
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["email"] != "buyer@restaurant.vn" {
			t.Errorf("email = %q", creds["email"])
		}
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u1","email":"buyer@restaurant.vn"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	session, err := c.Auth.SignInWithPassword(context.Background(), "buyer@restaurant.vn", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if session.AccessToken != "at" || session.User == nil || session.User.ID != "u1" {
		t.Errorf("session = %+v", session)
	}
}

func TestAuthGetUserInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"msg":"invalid JWT"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Auth.GetUser(context.Background(), "bogus")
	se := AsError(err)
	if se == nil || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if se.Message != "invalid JWT" {
		t.Errorf("message = %q", se.Message)
	}
}

func TestStoragePublicURL(t *testing.T) {
	c, err := NewClient(Config{ProjectURL: "https://proj.supabase.co", AnonKey: "k"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got := c.Storage.GetPublicURL("product-images", "carrots/main.jpg")
	want := "https://proj.supabase.co/storage/v1/object/public/product-images/carrots/main.jpg"
	if got != want {
		t.Errorf("GetPublicURL = %q, want %q", got, want)
	}
}

func TestStorageUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/invoices/2026/VD-1001.pdf" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-upsert") != "true" {
			t.Errorf("x-upsert = %q", r.Header.Get("x-upsert"))
		}
		w.Write([]byte(`{"Key":"invoices/2026/VD-1001.pdf"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	key, err := c.Storage.Upload(context.Background(), "invoices", "2026/VD-1001.pdf", []byte("%PDF"), UploadOptions{
		ContentType: "application/pdf",
		Upsert:      true,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if key != "invoices/2026/VD-1001.pdf" {
		t.Errorf("key = %q", key)
	}
}

func TestParseErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream exploded</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, _, err := c.DB.From("orders").Select().Execute(context.Background())
	se := AsError(err)
	if se == nil {
		t.Fatalf("expected *Error, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", se.StatusCode)
	}
	if se.Message == "" {
		t.Error("message should not be empty")
	}
}

func TestResilientTransportRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		ProjectURL: srv.URL,
		AnonKey:    "anon",
		Retry: &RetryConfig{
			MaxRetries:     3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2,
		},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, _, err = c.DB.From("orders").Select().Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute after retries: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond)

	if !cb.Allow() {
		t.Fatal("closed breaker should allow")
	}
	cb.RecordFailure()
	if tripped := cb.RecordFailure(); !tripped {
		t.Error("second failure should trip the breaker")
	}
	if cb.Allow() {
		t.Error("open breaker should reject")
	}
	if cb.State() != "open" {
		t.Errorf("state = %q", cb.State())
	}

	time.Sleep(25 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should half-open after cooldown")
	}
	if cb.Allow() {
		t.Error("half-open breaker should admit one probe only")
	}
	cb.RecordSuccess()
	if cb.State() != "closed" {
		t.Errorf("state after success = %q", cb.State())
	}
}

func TestRetryBackoffBounded(t *testing.T) {
	rc := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     10,
		Jitter:         0.5,
	}
	for attempt := 0; attempt < 5; attempt++ {
		d := rc.backoff(attempt)
		if d < 0 || d > 450*time.Millisecond {
			t.Errorf("backoff(%d) = %v out of bounds", attempt, d)
		}
	}
}
