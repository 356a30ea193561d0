package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joshuabejaranog21-afk/software/internal/apiclient"
	"github.com/joshuabejaranog21-afk/software/internal/audit"
	"github.com/joshuabejaranog21-afk/software/internal/config"
	"github.com/joshuabejaranog21-afk/software/internal/controller"
	"github.com/joshuabejaranog21-afk/software/internal/observability"
	"github.com/joshuabejaranog21-afk/software/internal/session"
	"github.com/joshuabejaranog21-afk/software/internal/tui"
	"github.com/joshuabejaranog21-afk/software/internal/webui"
)

type App struct {
	cfg      config.Config
	log      *slog.Logger
	db       *sql.DB
	sessions *session.Sessions
	client   *apiclient.Client
	ctrl     *controller.Controller
	server   *webui.Server
}

type Option func(*App)

// WithLogger replaces the stderr logger built from configuration.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

func New(cfg config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: observability.NewLoggerWithOptions(os.Stderr, cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(a)
	}

	store, db, err := OpenSessionStore(cfg.Session)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.sessions = session.NewSessions(store)

	a.client, err = apiclient.New(cfg.API.BaseURL, a.sessions,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithLogger(a.log),
		apiclient.WithUnauthorizedHandler(func() {
			if a.ctrl != nil {
				a.ctrl.SessionExpired()
			}
		}),
	)
	if err != nil {
		a.closeDB()
		return nil, fmt.Errorf("create api client: %w", err)
	}

	a.ctrl, err = controller.New(a.client, a.sessions, controller.Options{
		ErrorTTL:   cfg.Notify.ErrorTTL,
		SuccessTTL: cfg.Notify.SuccessTTL,
		Journal:    audit.NewJournal(cfg.AuditLogFile),
		Logger:     a.log,
	})
	if err != nil {
		a.closeDB()
		return nil, fmt.Errorf("create controller: %w", err)
	}

	a.server = webui.New(cfg.HTTP, webui.Deps{
		Controller:   a.ctrl,
		Tokens:       a.sessions,
		DemoAccounts: cfg.DemoAccounts,
		Logger:       a.log,
	})
	return a, nil
}

// OpenSessionStore builds the persisted session store for the configured
// backend. The returned *sql.DB is nil for the file backend.
func OpenSessionStore(cfg config.SessionConfig) (session.Store, *sql.DB, error) {
	switch cfg.Backend {
	case config.SessionBackendFile:
		store, err := session.NewFileStore(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("create file session store: %w", err)
		}
		return store, nil, nil
	case config.SessionBackendSQLite, config.SessionBackendPostgres:
		driver := session.DriverSQLite
		if cfg.Backend == config.SessionBackendPostgres {
			driver = session.DriverPostgres
		}
		store, db, err := session.OpenSQLStore(driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create %s session store: %w", cfg.Backend, err)
		}
		return store, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func (a *App) Controller() *controller.Controller { return a.ctrl }

func (a *App) Sessions() *session.Sessions { return a.sessions }

func (a *App) Client() *apiclient.Client { return a.client }

func (a *App) Logger() *slog.Logger { return a.log }

// Restore resumes a stored session, if any.
func (a *App) Restore(ctx context.Context) {
	restored, err := a.ctrl.RestoreSession(ctx)
	if err != nil {
		a.log.Error("restore session failed", "error", err)
		return
	}
	if restored {
		a.log.Info("resumed stored session", "view", a.ctrl.Snapshot().View)
	}
}

// Run serves the web UI until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.closeDB()
	a.Restore(ctx)

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("web ui starting", "addr", a.cfg.HTTP.Addr, "api", a.cfg.API.BaseURL)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

// RunTUI runs the terminal UI until the user quits or ctx is cancelled.
func (a *App) RunTUI(ctx context.Context) error {
	defer a.closeDB()
	a.Restore(ctx)
	return tui.Run(ctx, a.ctrl, a.cfg.DemoAccounts)
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *App) closeDB() {
	if err := a.Close(); err != nil {
		a.log.Warn("close session database failed", "error", err)
	}
}
