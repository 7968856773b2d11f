package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newNewsCommand(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "news",
		Short: "News ingestion operations",
	}
	cmd.AddCommand(newNewsCollectCommand(dataDir))
	return cmd
}

func newNewsCollectCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one fetch -> store -> sentiment -> prune cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadAppForCLI(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.newsIngest.Run(context.Background())
			if err != nil {
				return fmt.Errorf("news collection failed: %w", err)
			}
			fmt.Printf("fetched=%d stored=%d analyzed=%d pruned=%d\n", result.Fetched, result.Stored, result.Analyzed, result.Pruned)
			return nil
		},
	}
}
