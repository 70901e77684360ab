package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lylin/knowbase/api"
	"github.com/lylin/knowbase/internal/app"
	"github.com/lylin/knowbase/internal/config"
	"github.com/lylin/knowbase/internal/log"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	srv := api.NewServer(
		a.Pool,
		a.Conversations,
		a.Orchestrator,
		a.Pipeline,
		a.Documents,
		a.Knowledge,
		logger.With("component", "http"),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	return srv.Run(ctx, addr)
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
