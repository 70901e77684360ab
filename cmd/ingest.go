package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lylin/knowbase/internal/app"
	"github.com/lylin/knowbase/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Splits the given text files into chunks, embeds them, and indexes
them in the knowledge base. Re-ingesting a file replaces its previous
chunks. Supported formats: .txt, .md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
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

	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- paths come from the operator
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		doc, err := a.Pipeline.IngestFile(ctx, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("ingested %s: %d chunks\n", doc.Filename, doc.ChunkCount)
	}
	return nil
}
