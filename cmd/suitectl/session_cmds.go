package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/model"
)

func newLoginCmd(appFn func() *app) *cobra.Command {
	var token, refresh string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for subsequent commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			ctx := cmd.Context()
			cred := model.Credential{AccessToken: token, RefreshToken: refresh}
			if err := a.session.SaveCredential(ctx, cred); err != nil {
				return a.report(ctx, "log in", err)
			}
			a.logger.Info("logged in", zap.String("tenant", a.rctx.TenantID))

			saved, _, err := a.session.Credential(ctx)
			if err != nil {
				return a.report(ctx, "log in", err)
			}
			fmt.Fprintln(a.out, "Logged in.")
			if !saved.ExpiresAt.IsZero() {
				fmt.Fprintf(a.out, "Token expires at %s.\n", saved.ExpiresAt.UTC().Format(time.RFC3339))
			}
			page, err := a.session.LastPage(ctx)
			if err == nil && page != "/" {
				fmt.Fprintf(a.out, "Last page: %s\n", page)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token")
	cmd.Flags().StringVar(&refresh, "refresh-token", "", "Refresh token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			if err := a.session.ClearCredential(cmd.Context()); err != nil {
				return a.report(cmd.Context(), "log out", err)
			}
			a.logger.Info("logged out")
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			ctx := cmd.Context()
			cred, found, err := a.session.Credential(ctx)
			if err != nil {
				return a.report(ctx, "read session", err)
			}
			if !found {
				fmt.Fprintln(a.out, "Not logged in.")
				return nil
			}
			page, err := a.session.LastPage(ctx)
			if err != nil {
				return a.report(ctx, "read session", err)
			}

			tenantID := a.rctx.TenantID
			if tenantID == "" {
				tenantID = "(none)"
			}
			fmt.Fprintf(a.out, "Tenant:     %s\n", tenantID)
			fmt.Fprintf(a.out, "Token type: %s\n", cred.TokenType)
			switch {
			case cred.ExpiresAt.IsZero():
				fmt.Fprintln(a.out, "Expires:    unknown")
			case cred.Expired(time.Now()):
				fmt.Fprintf(a.out, "Expires:    %s (expired)\n", cred.ExpiresAt.UTC().Format(time.RFC3339))
			default:
				fmt.Fprintf(a.out, "Expires:    %s\n", cred.ExpiresAt.UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(a.out, "Last page:  %s\n", page)
			return nil
		},
	}
}

func newStatusCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check storage and backend reachability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			if ok := runStatus(cmd, a); !ok {
				return &reportedError{err: errors.New("one or more checks failed")}
			}
			return nil
		},
	}
}
