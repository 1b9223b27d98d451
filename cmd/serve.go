package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soilwise/soilwise/api"
	"github.com/soilwise/soilwise/internal/app"
	"github.com/soilwise/soilwise/internal/config"
	"github.com/soilwise/soilwise/internal/log"
)

var (
	serveAddr    string
	serveJSONLog bool
	serveDebug   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", api.DefaultAddr, "listen address")
	serveCmd.Flags().BoolVar(&serveJSONLog, "json-log", false, "emit JSON logs")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and runs the HTTP server until
// SIGINT or SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if serveDebug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: serveJSONLog})
	logger.Info("starting soilwise", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server := api.NewServer(
		api.NewHealthHandler(a.DBPool, a.Redis, logger),
		api.NewFilesHandler(a.Workers, a.Tracker, a.Store, cfg.DefaultOwner, logger),
		api.NewChatHandler(a.Answer, cfg.DefaultOwner, logger),
		logger,
	)

	return server.Run(ctx, serveAddr)
}
