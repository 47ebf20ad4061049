package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldforce/fieldforce/internal/auth"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/users"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Session token helpers",
}

var (
	tokenUserFlag string
	tokenTTLFlag  time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for a user (by email or id)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		ttl := e.cfg.JWTTTL
		if tokenTTLFlag > 0 {
			ttl = tokenTTLFlag
		}
		tokens, err := auth.NewTokenManager(e.cfg.JWTSecret, e.cfg.JWTIssuer, ttl)
		if err != nil {
			return err
		}
		return issueToken(cmd.Context(), cmd.OutOrStdout(), users.NewRepository(e.pool), tokens, tokenUserFlag)
	},
}

// userFinder is the lookup subset of users.Store.
type userFinder interface {
	Get(ctx context.Context, id string) (users.User, error)
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

func issueToken(ctx context.Context, out io.Writer, store userFinder, tokens *auth.TokenManager, ref string) error {
	u, err := store.FindByEmail(ctx, ref)
	if errors.Is(err, httpx.ErrNotFound) {
		u, err = store.Get(ctx, ref)
	}
	if err != nil {
		return fmt.Errorf("find user %q: %w", ref, err)
	}
	if !u.Active {
		return fmt.Errorf("user %s is inactive", u.Email)
	}
	token, expires, err := tokens.Issue(u)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n# %s (%s) expires %s\n", token, u.Email, u.Role, expires.Format(time.RFC3339))
	return nil
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Account maintenance",
}

var (
	emailFlag    string
	passwordFlag string
)

var userSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Set a user's password",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		if err := users.NewService(users.NewRepository(e.pool)).SetPassword(cmd.Context(), emailFlag, passwordFlag); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", emailFlag)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenUserFlag, "user", "", "User email or id (required)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTLFlag, "ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	tokenCmd.AddCommand(tokenIssueCmd)

	userSetPasswordCmd.Flags().StringVar(&emailFlag, "email", "", "Account email (required)")
	userSetPasswordCmd.Flags().StringVar(&passwordFlag, "password", "", "New password (required)")
	_ = userSetPasswordCmd.MarkFlagRequired("email")
	_ = userSetPasswordCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userSetPasswordCmd)
}
