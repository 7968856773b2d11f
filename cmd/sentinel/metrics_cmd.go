package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCommand(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Operational metrics operations",
	}
	cmd.AddCommand(newMetricsShowCommand(dataDir))
	return cmd
}

func newMetricsShowCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current in-process metrics snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadAppForCLI(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()

			snapshot := app.metrics.Snapshot()
			out, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode metrics snapshot: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
