package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/session"
	"github.com/joshuabejaranog21-afk/software/internal/stubserver"
)

func TestParseSeed(t *testing.T) {
	u, err := parseSeed("Admin|admin@test.com|123456|admin")
	if err != nil {
		t.Fatalf("parseSeed() error: %v", err)
	}
	if u.Email != "admin@test.com" || u.Rol != agenda.RoleAdmin || u.Password != "123456" {
		t.Fatalf("unexpected seed: %+v", u)
	}

	for _, bad := range []string{"a|b|c", "A|a@test.com|pw|root"} {
		if _, err := parseSeed(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestWaitForRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := waitFor(context.Background(), time.Second, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("waitFor() error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 probes, got %d", calls)
	}
}

func TestWaitForGivesUp(t *testing.T) {
	want := errors.New("down")
	err := waitFor(context.Background(), 10*time.Millisecond, time.Millisecond, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected last probe error, got %v", err)
	}
}

func TestAPIProbe(t *testing.T) {
	stub := stubserver.New()
	srv := stub.Start()
	defer srv.Close()

	probe := apiProbe(&http.Client{Timeout: time.Second}, srv.URL)
	if err := probe(context.Background()); err != nil {
		t.Fatalf("expected reachable stub, got %v", err)
	}
	srv.Close()
	if err := probe(context.Background()); err == nil {
		t.Fatalf("expected error after server closed")
	}
}

func setEnv(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	sessionFile := filepath.Join(dir, "session.json")
	t.Setenv("APP_ENV", "development")
	t.Setenv("AGENDA_API_URL", apiURL)
	t.Setenv("SESSION_BACKEND", "file")
	t.Setenv("SESSION_FILE", sessionFile)
	t.Setenv("AUDIT_LOG_FILE", filepath.Join(dir, "activity.log"))
	t.Setenv("AGENDA_DEMO_ACCOUNTS", "")
	t.Setenv("LOG_LEVEL", "error")
	return sessionFile
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWhoAmIAndLogout(t *testing.T) {
	stub := stubserver.New()
	srv := stub.Start()
	defer srv.Close()
	user := stub.Seed("Ana", "ana@test.com", "secret1", agenda.RoleUser)
	sessionFile := setEnv(t, srv.URL)

	out, err := execute(t, "whoami")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	if !strings.Contains(out, "no active session") {
		t.Fatalf("expected no session, got %q", out)
	}

	store, err := session.NewFileStore(sessionFile)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	token, err := stub.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	if err := session.NewSessions(store).Save(session.Session{Token: token, User: user}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	out, err = execute(t, "whoami", "--verify")
	if err != nil {
		t.Fatalf("whoami --verify error: %v", err)
	}
	for _, want := range []string{"Ana <ana@test.com>", "token: valid until", "server: valid=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output %q", want, out)
		}
	}

	if _, err := execute(t, "logout"); err != nil {
		t.Fatalf("logout error: %v", err)
	}
	out, _ = execute(t, "whoami")
	if !strings.Contains(out, "no active session") {
		t.Fatalf("expected session cleared, got %q", out)
	}
}
