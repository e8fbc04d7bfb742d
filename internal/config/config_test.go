package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "development")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Store.Currency != "VND" {
		t.Errorf("Currency = %q", cfg.Store.Currency)
	}
	if cfg.IsProduction() {
		t.Error("development config reported as production")
	}
	if cfg.CacheEnabled() {
		t.Error("cache should be disabled without REDIS_ADDR")
	}
}

func TestLoadRequiresBackendSettings(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without SUPABASE_URL")
	}
}

func TestProductionRequiresServiceKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("SUPABASE_SERVICE_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without service key in production")
	}

	t.Setenv("SUPABASE_SERVICE_KEY", "svc")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("expected production mode")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "SUPABASE_URL=https://filed.supabase.co\nSUPABASE_ANON_KEY=file-anon\nPORT=9090\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv does not override pre-set vars, so clear them.
	t.Setenv("SUPABASE_URL", "")
	os.Unsetenv("SUPABASE_URL")
	t.Setenv("SUPABASE_ANON_KEY", "")
	os.Unsetenv("SUPABASE_ANON_KEY")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Supabase.URL != "https://filed.supabase.co" {
		t.Errorf("URL = %q", cfg.Supabase.URL)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}

	if _, err := Load(filepath.Join(dir, "absent.env")); err == nil {
		t.Error("expected error for explicit missing env file")
	}
}

func TestServicesConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	content := `services:
  catalog:
    enabled: true
    description: Product catalog and stock
  mailer:
    enabled: false
    description: Transactional email dispatch
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write services.yaml: %v", err)
	}

	cfg, err := LoadServicesConfigFromPath(path)
	if err != nil {
		t.Fatalf("LoadServicesConfigFromPath: %v", err)
	}
	if !cfg.Enabled("catalog") {
		t.Error("catalog should be enabled")
	}
	if cfg.Enabled("mailer") {
		t.Error("mailer should be disabled")
	}
	if cfg.Enabled("unknown") {
		t.Error("unknown service should be disabled")
	}
}

func TestDefaultServicesConfigEnablesEverything(t *testing.T) {
	cfg := DefaultServicesConfig()
	for _, name := range []string{"catalog", "orders", "accounts", "settings", "dashboard", "mailer", "geocode"} {
		if !cfg.Enabled(name) {
			t.Errorf("service %s should default to enabled", name)
		}
	}
}
