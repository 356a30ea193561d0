package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuabejaranog21-afk/software/internal/app"
	"github.com/joshuabejaranog21-afk/software/internal/config"
	"github.com/joshuabejaranog21-afk/software/internal/observability"
	"github.com/joshuabejaranog21-afk/software/internal/session"
)

func newTUICmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// The terminal is owned by the UI, so logs only go to a file.
			log := observability.Discard()
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				log = observability.NewLoggerWithOptions(f, cfg.LogLevel, cfg.LogFormat)
			}

			a, err := app.New(cfg, app.WithLogger(log))
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			return a.RunTUI(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	return cmd
}

func newWhoAmICmd() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.New(cfg, app.WithLogger(cliLogger(cmd.ErrOrStderr(), cfg)))
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			defer a.Close()

			sess, err := a.Sessions().Load()
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), sess, time.Now())

			if !verify {
				return nil
			}
			v, err := a.Client().VerifyToken(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server: valid=%t\n", v.Valid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "ask the server whether the token is still valid")
	return cmd
}

func printSession(w io.Writer, sess session.Session, now time.Time) {
	u := sess.User
	fmt.Fprintf(w, "%s <%s> rol=%s id=%d\n", u.Nombre, u.Email, u.Rol, u.ID)

	info, err := session.ParseTokenInfo(sess.Token)
	if err != nil {
		fmt.Fprintf(w, "token: unreadable (%v)\n", err)
		return
	}
	if info.ExpiresAt.IsZero() {
		fmt.Fprintln(w, "token: no expiry")
		return
	}
	state := "valid"
	if info.Expired(now) {
		state = "expired"
	}
	fmt.Fprintf(w, "token: %s until %s\n", state, info.ExpiresAt.Local().Format(time.RFC3339))
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.New(cfg, app.WithLogger(cliLogger(cmd.ErrOrStderr(), cfg)))
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			defer a.Close()

			if err := a.Controller().Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func cliLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return observability.NewLoggerWithOptions(w, cfg.LogLevel, "text")
}
