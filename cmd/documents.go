package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docuquery/docqa/internal/app"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect or clear the ingested documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested files and chunk counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentsList()
	},
}

var documentsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentsClear()
	},
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsClearCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		summary, err := a.Service.Summary(ctx)
		if err != nil {
			return fmt.Errorf("summarizing documents: %w", err)
		}

		if !summary.HasDocuments {
			fmt.Println("No documents ingested.")
			return nil
		}

		fmt.Printf("%d chunks across %d files:\n", summary.Count, len(summary.FileNames))
		for _, name := range summary.FileNames {
			fmt.Printf("  %s\n", name)
		}
		return nil
	})
}

func runDocumentsClear() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Service.ClearAll(ctx); err != nil {
			return fmt.Errorf("clearing documents: %w", err)
		}
		fmt.Println("All documents deleted.")
		return nil
	})
}
