package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docuquery/docqa/internal/app"
	"github.com/docuquery/docqa/internal/store"
)

var askShowSources bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "print source excerpts used for the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(question string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		answer, err := a.Service.Ask(ctx, question, nil)
		if err != nil {
			if errors.Is(err, store.ErrNotInitialized) {
				return errors.New("no documents uploaded yet, run \"docqa ingest\" first")
			}
			return fmt.Errorf("asking question: %w", err)
		}

		fmt.Println(answer.Answer)

		if askShowSources && answer.UsedDocs {
			fmt.Println()
			for i, src := range answer.Sources {
				fmt.Printf("[%d] %s (chunk %d/%d)\n    %s\n",
					i+1, src.Metadata.FileName,
					src.Metadata.ChunkIndex+1, src.Metadata.TotalChunks,
					src.Content)
			}
		}

		return nil
	})
}
