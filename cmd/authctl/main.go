// Command authctl drives the auth service HTTP API and applies its database
// migrations.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/userauth/internal/store/pg"
	migrations "github.com/dropDatabas3/userauth/migrations/postgres"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cl := &client{
		BaseURL:   envOr("AUTHCTL_BASE_URL", "http://localhost:8080"),
		BasePath:  envOr("AUTHCTL_BASE_PATH", "/user/auth"),
		Bearer:    os.Getenv("AUTHCTL_BEARER"),
		OutFormat: envOr("AUTHCTL_OUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Out:       os.Stdout,
	}

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "CLI for the user auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cl.Out = cmd.OutOrStdout()
		},
	}
	root.PersistentFlags().StringVar(&cl.BaseURL, "base-url", cl.BaseURL, "service base URL (env AUTHCTL_BASE_URL)")
	root.PersistentFlags().StringVar(&cl.BasePath, "base-path", cl.BasePath, "auth route prefix (env AUTHCTL_BASE_PATH)")
	root.PersistentFlags().StringVar(&cl.Bearer, "bearer", cl.Bearer, "access token for local identity mode (env AUTHCTL_BEARER)")
	root.PersistentFlags().StringVar(&cl.OutFormat, "out", cl.OutFormat, "output format: json|text")

	root.AddCommand(
		loginCmd(cl),
		refreshCmd(cl),
		logoutCmd(cl),
		logoutAllCmd(cl),
		meCmd(cl),
		deleteCmd(cl),
		migrateCmd(),
	)
	return root
}

func loginCmd(cl *client) *cobra.Command {
	var code, kakaoToken, redirectURI string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a Kakao authorization code or access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (code == "") == (kakaoToken == "") {
				return fmt.Errorf("exactly one of --code or --kakao-token is required")
			}
			return cl.call("login", http.MethodPost, "/kakao", "", map[string]string{
				"code":             code,
				"kakaoAccessToken": kakaoToken,
				"redirectUri":      redirectURI,
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code")
	cmd.Flags().StringVar(&kakaoToken, "kakao-token", "", "Kakao access token")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect URI used to obtain --code")
	return cmd
}

func refreshCmd(cl *client) *cobra.Command {
	var user, token string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange a refresh token for a new access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.call("refresh", http.MethodPost, "/refresh", user, map[string]string{"refreshToken": token})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "asserted user id")
	cmd.Flags().StringVar(&token, "token", "", "refresh token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func logoutCmd(cl *client) *cobra.Command {
	var user, token string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke one refresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.call("logout", http.MethodPost, "/logout", user, map[string]string{"refreshToken": token})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "asserted user id")
	cmd.Flags().StringVar(&token, "token", "", "refresh token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func logoutAllCmd(cl *client) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "logout-all",
		Short: "Revoke every refresh token of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.call("logout-all", http.MethodPost, "/logout-all", user, nil)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "asserted user id")
	return cmd
}

func meCmd(cl *client) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.call("me", http.MethodGet, "/me", user, nil)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "asserted user id")
	return cmd
}

func deleteCmd(cl *client) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the current user's account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.call("delete", http.MethodDelete, "/me", user, nil)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "asserted user id")
	return cmd
}

func migrateCmd() *cobra.Command {
	var (
		dsn   string
		down  bool
		steps int
		list  bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := pg.Up
			if down {
				dir = pg.Down
			}
			if list {
				names, err := pg.ListMigrations(migrations.FS, dir)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			if dsn == "" {
				return fmt.Errorf("--dsn or STORAGE_DSN is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			s, err := pg.New(ctx, dsn, pg.PoolConfig{MaxConns: 2})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := pg.Migrate(ctx, s.Pool(), migrations.FS, dir, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s migration(s) applied\n", n, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("STORAGE_DSN"), "Postgres DSN (env STORAGE_DSN)")
	cmd.Flags().BoolVar(&down, "down", false, "run the down scripts in reverse order")
	cmd.Flags().IntVar(&steps, "steps", 0, "limit the number of scripts (0 = all)")
	cmd.Flags().BoolVar(&list, "list", false, "print the scripts that would run and exit")
	return cmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
