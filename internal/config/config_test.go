package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"HTTP_READ_TIMEOUT_SEC",
	"HTTP_WRITE_TIMEOUT_SEC",
	"HTTP_SHUTDOWN_TIMEOUT_SEC",
	"AGENDA_API_URL",
	"AGENDA_API_TIMEOUT_SEC",
	"SESSION_BACKEND",
	"SESSION_FILE",
	"SESSION_DSN",
	"NOTIFY_ERROR_TTL_SEC",
	"NOTIFY_SUCCESS_TTL_SEC",
	"AGENDA_DEMO_ACCOUNTS",
	"AUDIT_LOG_FILE",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "development" {
		t.Fatalf("expected default env development, got %q", cfg.Env)
	}
	if cfg.HTTP.Addr != ":3000" {
		t.Fatalf("expected default HTTP addr :3000, got %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Fatalf("expected default read timeout 10s, got %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.ShutdownTimeout != 20*time.Second {
		t.Fatalf("expected default shutdown timeout 20s, got %v", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Fatalf("expected default api url http://localhost:8000, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 0 {
		t.Fatalf("expected no api timeout by default, got %v", cfg.API.Timeout)
	}
	if cfg.Session.Backend != SessionBackendFile {
		t.Fatalf("expected default session backend file, got %q", cfg.Session.Backend)
	}
	if cfg.Session.File != "./data/session.json" {
		t.Fatalf("expected default session file ./data/session.json, got %q", cfg.Session.File)
	}
	if cfg.Notify.ErrorTTL != 5*time.Second {
		t.Fatalf("expected default error ttl 5s, got %v", cfg.Notify.ErrorTTL)
	}
	if cfg.Notify.SuccessTTL != 3*time.Second {
		t.Fatalf("expected default success ttl 3s, got %v", cfg.Notify.SuccessTTL)
	}
	if len(cfg.DemoAccounts) != 0 {
		t.Fatalf("expected no demo accounts by default, got %+v", cfg.DemoAccounts)
	}
	if cfg.AuditLogFile != "./data/activity.log" {
		t.Fatalf("expected default audit log file ./data/activity.log, got %q", cfg.AuditLogFile)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("AGENDA_API_URL", "https://agenda.example.com/")
	t.Setenv("AGENDA_API_TIMEOUT_SEC", "7")
	t.Setenv("SESSION_BACKEND", "sqlite")
	t.Setenv("SESSION_DSN", "file:session.db")
	t.Setenv("NOTIFY_ERROR_TTL_SEC", "9")
	t.Setenv("NOTIFY_SUCCESS_TTL_SEC", "2")
	t.Setenv("AGENDA_DEMO_ACCOUNTS", "Usuario Normal|usuario_nuevo@test.com|1234567; Administrador|admin@test.com|123456")
	t.Setenv("AUDIT_LOG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected overridden HTTP addr :9090, got %q", cfg.HTTP.Addr)
	}
	if cfg.API.BaseURL != "https://agenda.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 7*time.Second {
		t.Fatalf("expected api timeout 7s, got %v", cfg.API.Timeout)
	}
	if cfg.Session.Backend != SessionBackendSQLite || cfg.Session.DSN != "file:session.db" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Notify.ErrorTTL != 9*time.Second || cfg.Notify.SuccessTTL != 2*time.Second {
		t.Fatalf("unexpected notify config: %+v", cfg.Notify)
	}
	if len(cfg.DemoAccounts) != 2 {
		t.Fatalf("expected two demo accounts, got %+v", cfg.DemoAccounts)
	}
	if cfg.DemoAccounts[1].Label != "Administrador" || cfg.DemoAccounts[1].Email != "admin@test.com" || cfg.DemoAccounts[1].Password != "123456" {
		t.Fatalf("unexpected demo account: %+v", cfg.DemoAccounts[1])
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_READ_TIMEOUT_SEC", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Fatalf("expected fallback read timeout 10s, got %v", cfg.HTTP.ReadTimeout)
	}
}

func TestLoadRejectsDemoAccountsInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("AGENDA_DEMO_ACCOUNTS", "demo|demo@test.com|secret")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AGENDA_DEMO_ACCOUNTS") {
		t.Fatalf("expected demo accounts to be rejected in production, got %v", err)
	}
}

func TestLoadRejectsMalformedDemoAccount(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENDA_DEMO_ACCOUNTS", "only-an-email@test.com")

	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed demo account to fail")
	}
}

func TestLoadRequiresDSNForSQLBackends(t *testing.T) {
	for _, backend := range []string{SessionBackendSQLite, SessionBackendPostgres} {
		clearEnv(t)
		t.Setenv("SESSION_BACKEND", backend)
		if _, err := Load(); err == nil {
			t.Fatalf("expected missing SESSION_DSN to fail for backend %s", backend)
		}
	}

	clearEnv(t)
	t.Setenv("SESSION_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown session backend to fail")
	}
}

func TestLoadRejectsNonHTTPBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENDA_API_URL", "localhost:8000")
	if _, err := Load(); err == nil {
		t.Fatalf("expected non-http base url to fail")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("AGENDA_API_URL=http://api.internal:8000\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv does not override variables that are already present, even empty ones.
	os.Unsetenv("AGENDA_API_URL")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("AGENDA_API_URL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.API.BaseURL != "http://api.internal:8000" {
		t.Fatalf("expected base url from env file, got %q", cfg.API.BaseURL)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}
