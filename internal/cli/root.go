package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"todogate/internal/auth"
	"todogate/internal/config"
	"todogate/internal/dataclient"
	"todogate/internal/provider"
	"todogate/internal/ui"
)

type App struct {
	ConfigPath string
	Endpoint   string

	cfg config.Config
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "todo",
		Short:        "Signed-in todo list (TUI + reference backend)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the reference backend
  todo serve

  # Start the interactive TUI (sign-in gate, then the list)
  todo

  # Scriptable commands
  todo signup alice --password secret
  todo add buy milk
  todo list
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runTUI(app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.loadConfig()
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("TODOGATE_CONFIG", ""), "Path to config.toml (default: user config dir)")
	cmd.PersistentFlags().StringVar(&app.Endpoint, "endpoint", envOr("TODOGATE_ENDPOINT", ""), "Backend URL (overrides backend.endpoint)")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newSignUpCmd(app))
	cmd.AddCommand(newSignInCmd(app))
	cmd.AddCommand(newSignOutCmd(app))
	cmd.AddCommand(newWhoAmICmd(app))

	return cmd
}

func (app *App) loadConfig() error {
	path := app.ConfigPath
	if path == "" {
		path = config.ResolveConfigPath()
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if ep := strings.TrimSpace(app.Endpoint); ep != "" {
		cfg.Backend.Endpoint = strings.TrimRight(ep, "/")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	app.cfg = cfg
	return nil
}

func (app *App) creds() auth.Store {
	return auth.Store{Path: app.cfg.Auth.CredentialsPath}
}

func (app *App) client() *dataclient.Client {
	return dataclient.New(dataclient.Options{
		Endpoint: app.cfg.Backend.Endpoint,
		Timeout:  app.cfg.Backend.RequestTimeoutDuration(),
	})
}

// session returns the stored session or an error telling the user to sign in.
func (app *App) session() (auth.Session, error) {
	sess, err := app.creds().Load()
	if errors.Is(err, auth.ErrNotSignedIn) {
		return sess, errors.New("not signed in; run `todo signin <username>` first")
	}
	if err != nil {
		return sess, err
	}
	if sess.Expired(timeNow()) {
		return sess, errors.New("session expired; run `todo signin <username>` again")
	}
	return sess, nil
}

func runTUI(app *App) error {
	logger, closeLog, err := openLog(app.cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg := app.cfg
	return ui.Run(ui.Options{
		Config:  cfg,
		Creds:   app.creds(),
		Backend: ui.ClientBackend{Client: app.client()},
		NewClients: func(sess auth.Session) *provider.Provider[ui.ItemAPI] {
			return newClients(cfg, sess, logger)
		},
		Logger: logger,
	})
}

// newClients returns the provider whose handle is the Todo accessor for sess.
// Construction succeeds once the backend answers its health check.
func newClients(cfg config.Config, sess auth.Session, logger *slog.Logger) *provider.Provider[ui.ItemAPI] {
	build := func(ctx context.Context) (ui.ItemAPI, error) {
		c := dataclient.New(dataclient.Options{
			Endpoint: cfg.Backend.Endpoint,
			Token:    sess.Token,
			Timeout:  cfg.Backend.RequestTimeoutDuration(),
		})
		if err := c.Health(ctx); err != nil {
			return nil, fmt.Errorf("connect %s: %w", c.Endpoint(), err)
		}
		return c.Todo, nil
	}
	return provider.New[ui.ItemAPI](build, provider.Options{
		Timeout: cfg.Backend.ReadyTimeoutDuration(),
		Logger:  logger.With("endpoint", cfg.Backend.Endpoint),
	})
}

// openLog opens the log file from cfg. The TUI owns the terminal, so
// everything it logs goes there.
func openLog(cfg config.Log) (*slog.Logger, func(), error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, fmt.Errorf("log.level: %w", err)
	}
	if cfg.Path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}))
	return logger, func() { _ = f.Close() }, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
