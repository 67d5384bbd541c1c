package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"todogate/internal/server"
	"todogate/internal/storage"
)

func newServeCmd(app *App) *cobra.Command {
	var listen, dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if dbPath != "" {
				cfg.Server.DBPath = dbPath
			}
			lvl, err := cfg.Log.SlogLevel()
			if err != nil {
				return fmt.Errorf("log.level: %w", err)
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))

			store, err := storage.Open(cfg.Server.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("opened database", "path", cfg.Server.DBPath)
			srv := server.New(store, server.Options{
				SessionTTL: cfg.Server.SessionTTLDuration(),
				Logger:     logger,
			})
			return srv.ListenAndServe(ctx, cfg.Server.Listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides server.db_path)")
	return cmd
}
