package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/stubserver"
)

func newStubCmd() *cobra.Command {
	var (
		addr  string
		key   string
		seeds []string
	)

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve an in-memory contacts API for local use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts := make([]agenda.NewUser, 0, len(seeds))
			for _, raw := range seeds {
				u, err := parseSeed(raw)
				if err != nil {
					return err
				}
				accounts = append(accounts, u)
			}

			if key == "" {
				key = os.Getenv("STUB_SIGNING_KEY")
			}
			stub := stubserver.NewWithKey([]byte(key))
			for _, u := range accounts {
				seeded, err := stub.Directory().CreateUser(u)
				if err != nil {
					return fmt.Errorf("seed %s: %w", u.Email, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (%s)\n", seeded.Email, seeded.Rol)
			}

			srv := &http.Server{Addr: addr, Handler: stub, ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				fmt.Fprintf(cmd.OutOrStdout(), "stub api listening on %s\n", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&key, "signing-key", "", "token signing key (default $STUB_SIGNING_KEY, else random per run)")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, `account as "nombre|email|password|rol" (repeatable)`)
	return cmd
}

func parseSeed(raw string) (agenda.NewUser, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return agenda.NewUser{}, fmt.Errorf("seed %q must be nombre|email|password|rol", raw)
	}
	u := agenda.NewUser{
		Nombre:   strings.TrimSpace(parts[0]),
		Email:    strings.TrimSpace(parts[1]),
		Password: parts[2],
		Rol:      strings.TrimSpace(parts[3]),
	}
	if u.Rol != agenda.RoleUser && u.Rol != agenda.RoleAdmin {
		return agenda.NewUser{}, fmt.Errorf("seed %q: rol must be user or admin", raw)
	}
	return u, nil
}
