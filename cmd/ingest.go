package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docuquery/docqa/internal/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the vector store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		for _, path := range paths {
			result, err := a.Service.Ingest(ctx, path, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("Ingested %s (%d chunks)\n", result.FileName, result.Chunks)
		}
		return nil
	})
}
