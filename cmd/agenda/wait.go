package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuabejaranog21-afk/software/internal/config"
	"github.com/joshuabejaranog21-afk/software/internal/session"
)

const probeInterval = 2 * time.Second

func newWaitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until the API and the session database answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be > 0")
			}
			ctx := cmd.Context()

			hc := &http.Client{Timeout: probeInterval}
			if err := waitFor(ctx, timeout, probeInterval, apiProbe(hc, cfg.API.BaseURL)); err != nil {
				return fmt.Errorf("api not ready within %s: %w", timeout, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "api ready")

			if cfg.Session.Backend != config.SessionBackendPostgres {
				return nil
			}
			db, err := sql.Open(session.DriverPostgres, cfg.Session.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()
			if err := waitFor(ctx, timeout, probeInterval, db.PingContext); err != nil {
				return fmt.Errorf("postgres not ready within %s: %w", timeout, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "postgres ready")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to keep probing")
	return cmd
}

// apiProbe treats any HTTP response as reachable.
func apiProbe(hc *http.Client, baseURL string) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

// waitFor calls probe until it succeeds, the timeout passes, or ctx ends.
func waitFor(ctx context.Context, timeout, interval time.Duration, probe func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	for {
		pctx, cancel := context.WithTimeout(ctx, interval)
		err := probe(pctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
