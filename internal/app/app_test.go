package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/config"
	"github.com/joshuabejaranog21-afk/software/internal/controller"
	"github.com/joshuabejaranog21-afk/software/internal/observability"
	"github.com/joshuabejaranog21-afk/software/internal/stubserver"
)

func testConfig(t *testing.T, apiURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Env: "development",
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		API: config.APIConfig{BaseURL: apiURL},
		Session: config.SessionConfig{
			Backend: config.SessionBackendFile,
			File:    filepath.Join(dir, "session.json"),
		},
		Notify: config.NotifyConfig{
			ErrorTTL:   5 * time.Second,
			SuccessTTL: 3 * time.Second,
		},
		AuditLogFile: filepath.Join(dir, "activity.log"),
		LogLevel:     "error",
		LogFormat:    "text",
	}
}

func TestOpenSessionStoreBackends(t *testing.T) {
	dir := t.TempDir()

	store, db, err := OpenSessionStore(config.SessionConfig{Backend: config.SessionBackendFile, File: filepath.Join(dir, "s.json")})
	if err != nil {
		t.Fatalf("file backend error: %v", err)
	}
	if store == nil || db != nil {
		t.Fatalf("expected file store without a database")
	}

	store, db, err = OpenSessionStore(config.SessionConfig{Backend: config.SessionBackendSQLite, DSN: filepath.Join(dir, "s.db")})
	if err != nil {
		t.Fatalf("sqlite backend error: %v", err)
	}
	if store == nil || db == nil {
		t.Fatalf("expected sqlite store with a database")
	}
	_ = db.Close()

	if _, _, err := OpenSessionStore(config.SessionConfig{Backend: "redis"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	stub := stubserver.New()
	srv := stub.Start()
	t.Cleanup(srv.Close)
	stub.Seed("Ana", "ana@test.com", "secret1", agenda.RoleUser)

	cfg := testConfig(t, srv.URL)
	first, err := New(cfg, WithLogger(observability.Discard()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := first.Controller().Login(context.Background(), "ana@test.com", "secret1"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	_ = first.Close()

	second, err := New(cfg, WithLogger(observability.Discard()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer second.Close()
	second.Restore(context.Background())

	st := second.Controller().Snapshot()
	if !st.LoggedIn() || st.User.Email != "ana@test.com" {
		t.Fatalf("expected stored session restored, got %+v", st.User)
	}
	if st.View != controller.ViewDashboard {
		t.Fatalf("expected dashboard after restore, got %q", st.View)
	}
}

func TestUnauthorizedHookReachesController(t *testing.T) {
	stub := stubserver.New()
	srv := stub.Start()
	t.Cleanup(srv.Close)
	stub.Seed("Ana", "ana@test.com", "secret1", agenda.RoleUser)

	a, err := New(testConfig(t, srv.URL), WithLogger(observability.Discard()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.Controller().Login(ctx, "ana@test.com", "secret1"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	stub.RevokeAll()
	_ = a.Controller().LoadContacts(ctx)

	st := a.Controller().Snapshot()
	if st.LoggedIn() || st.View != controller.ViewLogin {
		t.Fatalf("expected expired session to return to login, got view %q", st.View)
	}
	if _, err := a.Sessions().Token(); err == nil {
		t.Fatalf("expected stored token cleared")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	stub := stubserver.New()
	srv := stub.Start()
	t.Cleanup(srv.Close)

	a, err := New(testConfig(t, srv.URL), WithLogger(observability.Discard()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
}
