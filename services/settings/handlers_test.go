package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/cache"
	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/middleware"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

type fakeSettingsRepo struct {
	row      *settingssupabase.Settings
	getCalls int
	saveErr  error
}

func (f *fakeSettingsRepo) Get(ctx context.Context) (*settingssupabase.Settings, error) {
	f.getCalls++
	if f.row == nil {
		return nil, database.ErrNotFound
	}
	cp := *f.row
	return &cp, nil
}

func (f *fakeSettingsRepo) Save(ctx context.Context, s *settingssupabase.Settings) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	s.ID = settingssupabase.RowID
	cp := *s
	f.row = &cp
	return nil
}

func newTestService(t *testing.T, repo settingssupabase.RepositoryInterface, c cache.Cache) (*Service, *mux.Router) {
	t.Helper()
	router := mux.NewRouter()
	svc, err := New(Config{Repo: repo, Cache: c, Logger: logging.NewNop(), Router: router})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, router
}

func asAdmin(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), logging.UserIDKey, "admin-1")
	ctx = context.WithValue(ctx, logging.RoleKey, middleware.RoleAdmin)
	return r.WithContext(ctx)
}

func TestPublicSettingsFallsBackToDefaults(t *testing.T) {
	_, router := newTestService(t, &fakeSettingsRepo{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp PublicSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StoreName != "VegDirect" || resp.Currency != "VND" {
		t.Errorf("defaults = %+v", resp)
	}
	if !resp.MenuToggles[settingssupabase.MenuOrders] {
		t.Error("orders menu should default to enabled")
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	repo := &fakeSettingsRepo{}
	_, router := newTestService(t, repo, nil)

	tests := []struct {
		name  string
		input UpdateSettingsInput
		want  int
	}{
		{"missing store name", UpdateSettingsInput{Currency: "VND", VATPercent: 8}, http.StatusBadRequest},
		{"bad currency", UpdateSettingsInput{StoreName: "V", Currency: "ZZZ", VATPercent: 8}, http.StatusBadRequest},
		{"vat too high", UpdateSettingsInput{StoreName: "V", Currency: "VND", VATPercent: 90}, http.StatusBadRequest},
		{"negative vat", UpdateSettingsInput{StoreName: "V", Currency: "VND", VATPercent: -1}, http.StatusBadRequest},
		{"unknown menu item", UpdateSettingsInput{StoreName: "V", Currency: "VND", VATPercent: 8,
			MenuToggles: map[string]bool{"secret_panel": true}}, http.StatusBadRequest},
		{"ok", UpdateSettingsInput{StoreName: "VegDirect", Currency: "USD", VATPercent: 10,
			MenuToggles: map[string]bool{settingssupabase.MenuOrders: false}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.input)
			req := asAdmin(httptest.NewRequest(http.MethodPut, "/admin/settings", bytes.NewReader(body)))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if repo.row == nil {
		t.Fatal("valid update did not persist")
	}
	if repo.row.Currency != "USD" || repo.row.UpdatedBy != "admin-1" {
		t.Errorf("saved row = %+v", repo.row)
	}
	if repo.row.MenuToggles[settingssupabase.MenuOrders] {
		t.Error("orders menu should be toggled off")
	}
}

func TestSettingsCacheInvalidation(t *testing.T) {
	repo := &fakeSettingsRepo{row: &settingssupabase.Settings{
		ID: settingssupabase.RowID, StoreName: "Old", Currency: "VND", VATPercent: 8,
	}}
	mem := cache.NewMemoryCache()
	defer mem.Close()
	_, router := newTestService(t, repo, mem)

	get := func() PublicSettings {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
		var resp PublicSettings
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return resp
	}

	get()
	get()
	if repo.getCalls != 1 {
		t.Errorf("getCalls = %d, want 1 (second read cached)", repo.getCalls)
	}

	body, _ := json.Marshal(UpdateSettingsInput{StoreName: "New", Currency: "VND", VATPercent: 8})
	req := asAdmin(httptest.NewRequest(http.MethodPut, "/admin/settings", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}

	if got := get(); got.StoreName != "New" {
		t.Errorf("store name after update = %q, want New", got.StoreName)
	}
}

func TestAdminSettingsRequiresAdmin(t *testing.T) {
	_, router := newTestService(t, &fakeSettingsRepo{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/settings", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
	ctx := context.WithValue(req.Context(), logging.UserIDKey, "cust-1")
	ctx = context.WithValue(ctx, logging.RoleKey, middleware.RoleCustomer)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Errorf("customer status = %d, want 403", rec.Code)
	}
}
