package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"todogate/internal/auth"
	"todogate/internal/dataclient"
)

var timeNow = time.Now

func newSignUpCmd(app *App) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signup <username>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if password == "" {
				return errors.New("password required (--password or $TODOGATE_PASSWORD)")
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			if err := app.client().SignUp(ctx, username, password); err != nil {
				return fmt.Errorf("sign up: %w", err)
			}
			return signIn(ctx, cmd, app, username, password)
		},
	}
	cmd.Flags().StringVar(&password, "password", envOr("TODOGATE_PASSWORD", ""), "Password")
	return cmd
}

func newSignInCmd(app *App) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signin <username>",
		Short: "Sign in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errors.New("password required (--password or $TODOGATE_PASSWORD)")
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			return signIn(ctx, cmd, app, strings.TrimSpace(args[0]), password)
		},
	}
	cmd.Flags().StringVar(&password, "password", envOr("TODOGATE_PASSWORD", ""), "Password")
	return cmd
}

func signIn(ctx context.Context, cmd *cobra.Command, app *App, username, password string) error {
	res, err := app.client().SignIn(ctx, username, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	sess := auth.Session{
		Username:  res.Username,
		Token:     res.Token,
		Endpoint:  app.cfg.Backend.Endpoint,
		CreatedAt: timeNow().UTC(),
	}
	if !res.ExpiresAt.IsZero() {
		exp := res.ExpiresAt
		sess.ExpiresAt = &exp
	}
	if err := app.creds().Save(sess); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Hello, %s!\n", sess.DisplayName())
	return nil
}

func newSignOutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Revoke the session and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := app.creds()
			sess, err := creds.Load()
			if errors.Is(err, auth.ErrNotSignedIn) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			if err != nil {
				return err
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			remoteErr := app.client().WithToken(sess.Token).SignOut(ctx)
			if err := creds.Delete(); err != nil {
				return err
			}
			if remoteErr != nil && !dataclient.IsUnauthorized(remoteErr) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: backend sign-out failed: %v\n", remoteErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoAmICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user as the backend sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session()
			if err != nil {
				return err
			}
			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			name, err := app.client().WithToken(sess.Token).Me(ctx)
			if err != nil {
				return fmt.Errorf("whoami: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

func (app *App) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, app.cfg.Backend.RequestTimeoutDuration())
}
