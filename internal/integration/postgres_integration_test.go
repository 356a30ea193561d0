package integration

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/apiclient"
	"github.com/joshuabejaranog21-afk/software/internal/controller"
	"github.com/joshuabejaranog21-afk/software/internal/observability"
	"github.com/joshuabejaranog21-afk/software/internal/session"
	"github.com/joshuabejaranog21-afk/software/internal/stubserver"
)

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration tests")
	}

	db, err := sql.Open(session.DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping() error: %v", err)
	}
	if _, err := db.Exec("DROP TABLE IF EXISTS client_session"); err != nil {
		t.Fatalf("reset client_session: %v", err)
	}
	return db
}

func TestPostgresSessionStoreRoundTrip(t *testing.T) {
	db := openTestPostgres(t)

	store, err := session.NewSQLStore(db)
	if err != nil {
		t.Fatalf("NewSQLStore() error: %v", err)
	}
	sessions := session.NewSessions(store)

	want := session.Session{
		Token: "token-1",
		User:  agenda.User{ID: 7, Nombre: "Ana", Email: "ana@test.com", Rol: agenda.RoleAdmin},
	}
	if err := sessions.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reopened, err := session.NewSQLStore(db)
	if err != nil {
		t.Fatalf("NewSQLStore() reopen error: %v", err)
	}
	got, err := session.NewSessions(reopened).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	want.Token = "token-2"
	if err := sessions.Save(want); err != nil {
		t.Fatalf("Save() overwrite error: %v", err)
	}
	if tok, _ := sessions.Token(); tok != "token-2" {
		t.Fatalf("expected overwritten token, got %q", tok)
	}

	if err := sessions.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := sessions.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestPostgresBackedSessionExpiry(t *testing.T) {
	db := openTestPostgres(t)

	store, err := session.NewSQLStore(db)
	if err != nil {
		t.Fatalf("NewSQLStore() error: %v", err)
	}
	sessions := session.NewSessions(store)

	stub := stubserver.New()
	srv := stub.Start()
	t.Cleanup(srv.Close)
	stub.Seed("Ana", "ana@test.com", "secret1", agenda.RoleUser)

	var ctrl *controller.Controller
	client, err := apiclient.New(srv.URL, sessions,
		apiclient.WithLogger(observability.Discard()),
		apiclient.WithUnauthorizedHandler(func() { ctrl.SessionExpired() }),
	)
	if err != nil {
		t.Fatalf("apiclient.New() error: %v", err)
	}
	ctrl, err = controller.New(client, sessions, controller.Options{Logger: observability.Discard()})
	if err != nil {
		t.Fatalf("controller.New() error: %v", err)
	}

	ctx := context.Background()
	if err := ctrl.Login(ctx, "ana@test.com", "secret1"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM client_session").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected token and user rows, got %d", rows)
	}

	stub.RevokeAll()
	_ = ctrl.LoadContacts(ctx)

	if err := db.QueryRow("SELECT COUNT(*) FROM client_session").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected rows removed after 401, got %d", rows)
	}
	if ctrl.Snapshot().View != controller.ViewLogin {
		t.Fatalf("expected login view after expiry")
	}
}
