package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/domain"
)

const backtestDateLayout = "2006-01-02"

func newBacktestCommand(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run historical strategy replays",
	}
	cmd.AddCommand(newBacktestRunCommand(dataDir))
	return cmd
}

func newBacktestRunCommand(dataDir *string) *cobra.Command {
	var (
		userID          string
		name            string
		start           string
		end             string
		initialCapital  float64
		buyThreshold    int
		sellThreshold   int
		stopLossPct     float64
		maxPositionSize float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a strategy against stored price history and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadAppForCLI(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()

			startDate, err := time.Parse(backtestDateLayout, start)
			if err != nil {
				return fmt.Errorf("invalid --start date: %w", err)
			}
			endDate, err := time.Parse(backtestDateLayout, end)
			if err != nil {
				return fmt.Errorf("invalid --end date: %w", err)
			}

			runID := uuid.NewString()
			run := domain.BacktestRun{
				ID:             runID,
				UserID:         userID,
				Name:           name,
				StartDate:      startDate,
				EndDate:        endDate,
				InitialCapital: initialCapital,
				Status:         domain.BacktestPending,
			}
			if err := app.backtests.CreateRun(run); err != nil {
				return fmt.Errorf("failed to create backtest run: %w", err)
			}

			req := backtest.Request{
				RunID:           runID,
				UserID:          userID,
				StartDate:       startDate,
				EndDate:         endDate,
				InitialCapital:  initialCapital,
				BuyThreshold:    buyThreshold,
				SellThreshold:   sellThreshold,
				StopLossPct:     stopLossPct,
				MaxPositionSize: maxPositionSize,
			}
			if err := app.backtest.Run(context.Background(), req); err != nil {
				return fmt.Errorf("backtest failed: %w", err)
			}

			result, err := app.backtests.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to load completed run: %w", err)
			}
			fmt.Printf("run %s: status=%s return=%.2f%% trades=%d win_rate=%.1f%% sharpe=%.2f\n",
				result.ID, result.Status, result.ReturnPct, result.TotalTrades, result.WinRate, result.Sharpe)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "user id the run is attributed to")
	cmd.Flags().StringVar(&name, "name", "cli-backtest", "human-readable name for the run")
	cmd.Flags().StringVar(&start, "start", "", "replay start date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&end, "end", "", "replay end date, YYYY-MM-DD (required)")
	cmd.Flags().Float64Var(&initialCapital, "capital", 100000, "starting capital")
	cmd.Flags().IntVar(&buyThreshold, "buy-threshold", 71, "signal ratio at/above which a buy fires")
	cmd.Flags().IntVar(&sellThreshold, "sell-threshold", 30, "signal ratio at/below which a sell fires")
	cmd.Flags().Float64Var(&stopLossPct, "stop-loss-pct", 5, "stop-loss percentage")
	cmd.Flags().Float64Var(&maxPositionSize, "max-position-size", 10000, "max capital per position")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}
