package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLearnCommand(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Learning subsystem operations",
	}
	cmd.AddCommand(newLearnCycleCommand(dataDir))
	return cmd
}

func newLearnCycleCommand(dataDir *string) *cobra.Command {
	var strategyName string

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Extract trade patterns and optimize a strategy from them now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadAppForCLI(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.learningSvc.RunCycle(strategyName)
			if err != nil {
				return fmt.Errorf("learning cycle failed: %w", err)
			}
			fmt.Printf("session %s: status=%s patterns_extracted=%d strategy=%s\n",
				session.ID, session.Status, session.PatternsExtracted, session.StrategyID)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", "default", "name of the strategy to version and activate")
	return cmd
}
