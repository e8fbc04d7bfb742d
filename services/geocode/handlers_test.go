package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/cache"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/middleware"
)

type searchCall struct {
	query string
	limit int
}

type reverseCall struct {
	lat, lon float64
}

type fakeProvider struct {
	mu       sync.Mutex
	searches []searchCall
	reverses []reverseCall
	result   []Suggestion
	err      error
}

func (f *fakeProvider) Search(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, searchCall{query: query, limit: limit})
	if f.err != nil {
		return nil, f.err
	}
	return append([]Suggestion(nil), f.result...), nil
}

func (f *fakeProvider) Reverse(ctx context.Context, lat, lon float64) ([]Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverses = append(f.reverses, reverseCall{lat: lat, lon: lon})
	if f.err != nil {
		return nil, f.err
	}
	return append([]Suggestion(nil), f.result...), nil
}

func (f *fakeProvider) searchCalls() []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]searchCall(nil), f.searches...)
}

func (f *fakeProvider) reverseCalls() []reverseCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reverseCall(nil), f.reverses...)
}

func sampleSuggestions() []Suggestion {
	return []Suggestion{
		{Label: "12 Hàng Gai, Hoàn Kiếm, Hà Nội, Việt Nam", Street: "12 Hàng Gai", City: "Hà Nội", Country: "Việt Nam", Lat: 21.0313, Lon: 105.8516},
		{Label: "Hàng Gai, Hoàn Kiếm, Hà Nội, Việt Nam", Street: "Hàng Gai", City: "Hà Nội", Country: "Việt Nam", Lat: 21.031, Lon: 105.8512},
	}
}

// newGeocodeEnv builds a service around a fake provider. A zero minDelay
// maps to a nanosecond so sequential test calls are never throttled.
func newGeocodeEnv(t *testing.T, p Provider, c cache.Cache, minDelay time.Duration) *mux.Router {
	t.Helper()
	if minDelay == 0 {
		minDelay = time.Nanosecond
	}
	router := mux.NewRouter()
	if _, err := New(Config{
		Cache:    c,
		Logger:   logging.NewNop(),
		Router:   router,
		Provider: p,
		MinDelay: minDelay,
	}); err != nil {
		t.Fatalf("New: %v", err)
	}
	return router
}

func authed(r *http.Request, userID, role string) *http.Request {
	ctx := context.WithValue(r.Context(), logging.UserIDKey, userID)
	ctx = context.WithValue(ctx, logging.RoleKey, role)
	return r.WithContext(ctx)
}

func do(router *mux.Router, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func getSearch(router *mux.Router, query string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/geocode/search?"+query, nil)
	return do(router, authed(r, "user-1", middleware.RoleCustomer))
}

func getReverse(router *mux.Router, query string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/geocode/reverse?"+query, nil)
	return do(router, authed(r, "user-1", middleware.RoleCustomer))
}

func TestSearchReturnsSuggestions(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()}
	router := newGeocodeEnv(t, provider, nil, 0)

	w := getSearch(router, "q=H%C3%A0ng+Gai")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query != "hàng gai" {
		t.Errorf("query = %q, want normalized %q", resp.Query, "hàng gai")
	}
	if len(resp.Suggestions) != 2 {
		t.Fatalf("suggestions = %d, want 2", len(resp.Suggestions))
	}
	if resp.Suggestions[0].Street != "12 Hàng Gai" || resp.Suggestions[0].Lat != 21.0313 {
		t.Errorf("first suggestion = %+v", resp.Suggestions[0])
	}

	calls := provider.searchCalls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if calls[0].query != "hàng gai" || calls[0].limit != defaultLimit {
		t.Errorf("provider call = %+v", calls[0])
	}
}

func TestSearchRejectsShortQueries(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()}
	router := newGeocodeEnv(t, provider, nil, 0)

	for _, query := range []string{"", "q=", "q=H", "q=++h++"} {
		if w := getSearch(router, query); w.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", query, w.Code)
		}
	}
	if calls := provider.searchCalls(); len(calls) != 0 {
		t.Errorf("short queries reached the provider: %+v", calls)
	}
}

func TestSearchLimitHandling(t *testing.T) {
	provider := &fakeProvider{}
	router := newGeocodeEnv(t, provider, nil, 0)

	if w := getSearch(router, "q=hanoi&limit=50"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if calls := provider.searchCalls(); len(calls) != 1 || calls[0].limit != maxLimit {
		t.Errorf("calls = %+v, want limit clamped to %d", provider.searchCalls(), maxLimit)
	}

	if w := getSearch(router, "q=hanoi&limit=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("limit=abc: status = %d, want 400", w.Code)
	}
}

func TestSearchServesRepeatsFromCache(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()}
	mem := cache.NewMemoryCache()
	defer mem.Close()
	router := newGeocodeEnv(t, provider, mem, 0)

	if w := getSearch(router, "q=H%C3%A0ng+Gai"); w.Code != http.StatusOK {
		t.Fatalf("first lookup: status = %d", w.Code)
	}
	// Different casing and spacing, same normalized query.
	w := getSearch(router, "q=++h%C3%A0ng+++gai+")
	if w.Code != http.StatusOK {
		t.Fatalf("second lookup: status = %d", w.Code)
	}

	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Suggestions) != 2 {
		t.Errorf("cached suggestions = %d, want 2", len(resp.Suggestions))
	}
	if calls := provider.searchCalls(); len(calls) != 1 {
		t.Errorf("provider calls = %d, want 1 (second served from cache)", len(calls))
	}
}

func TestSearchThrottlesProviderCalls(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()}
	mem := cache.NewMemoryCache()
	defer mem.Close()
	router := newGeocodeEnv(t, provider, mem, time.Hour)

	if w := getSearch(router, "q=hanoi"); w.Code != http.StatusOK {
		t.Fatalf("first lookup: status = %d", w.Code)
	}
	if w := getSearch(router, "q=saigon"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second lookup: status = %d, want 429", w.Code)
	}
	// The throttle gates provider calls only, never cached answers.
	if w := getSearch(router, "q=hanoi"); w.Code != http.StatusOK {
		t.Errorf("cached lookup while throttled: status = %d, want 200", w.Code)
	}
	if calls := provider.searchCalls(); len(calls) != 1 {
		t.Errorf("provider calls = %d, want 1", len(calls))
	}
}

func TestSearchMapsProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: context.DeadlineExceeded}
	router := newGeocodeEnv(t, provider, nil, 0)

	w := getSearch(router, "q=hanoi")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "geocoding provider unavailable") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestReverseResolvesAddress(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()[:1]}
	router := newGeocodeEnv(t, provider, nil, 0)

	w := getReverse(router, "lat=21.0313&lon=105.8516")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp ReverseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Lat != 21.0313 || resp.Lon != 105.8516 {
		t.Errorf("echoed coordinate = %v,%v", resp.Lat, resp.Lon)
	}
	if resp.Address.Street != "12 Hàng Gai" {
		t.Errorf("address = %+v", resp.Address)
	}

	calls := provider.reverseCalls()
	if len(calls) != 1 || calls[0].lat != 21.0313 || calls[0].lon != 105.8516 {
		t.Errorf("provider calls = %+v", calls)
	}
}

func TestReverseValidation(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()}
	router := newGeocodeEnv(t, provider, nil, 0)

	for _, query := range []string{
		"",
		"lat=21.03",
		"lon=105.85",
		"lat=abc&lon=105.85",
		"lat=91&lon=105.85",
		"lat=21.03&lon=181",
	} {
		if w := getReverse(router, query); w.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", query, w.Code)
		}
	}
	if calls := provider.reverseCalls(); len(calls) != 0 {
		t.Errorf("invalid coordinates reached the provider: %+v", calls)
	}
}

func TestReverseUnknownCoordinate(t *testing.T) {
	provider := &fakeProvider{}
	router := newGeocodeEnv(t, provider, nil, 0)

	w := getReverse(router, "lat=0&lon=0")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestReverseServesRepeatsFromCache(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()[:1]}
	mem := cache.NewMemoryCache()
	defer mem.Close()
	router := newGeocodeEnv(t, provider, mem, 0)

	for i := 0; i < 2; i++ {
		if w := getReverse(router, "lat=21.0313&lon=105.8516"); w.Code != http.StatusOK {
			t.Fatalf("lookup %d: status = %d", i, w.Code)
		}
	}
	if calls := provider.reverseCalls(); len(calls) != 1 {
		t.Errorf("provider calls = %d, want 1", len(calls))
	}
}

func TestGeocodeRequiresAuthentication(t *testing.T) {
	provider := &fakeProvider{result: sampleSuggestions()}
	router := newGeocodeEnv(t, provider, nil, 0)

	for _, path := range []string{"/geocode/search?q=hanoi", "/geocode/reverse?lat=21&lon=105"} {
		w := do(router, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, w.Code)
		}
	}
	if n := len(provider.searchCalls()) + len(provider.reverseCalls()); n != 0 {
		t.Errorf("anonymous requests reached the provider %d times", n)
	}
}
