package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// BacktestRepository persists backtest runs, their simulated trades, and
// daily portfolio statistics in trading.db.
type BacktestRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBacktestRepository creates a backtest repository over the trading database.
func NewBacktestRepository(db *sql.DB, log zerolog.Logger) *BacktestRepository {
	return &BacktestRepository{db: db, log: log.With().Str("repo", "backtest").Logger()}
}

// CreateRun inserts a new run in PENDING status.
func (r *BacktestRepository) CreateRun(run domain.BacktestRun) error {
	_, err := r.db.Exec(
		`INSERT INTO backtest_runs (
		    id, user_id, name, strategy_config, start_date, end_date, initial_capital, status
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.Name, run.StrategyConfig, run.StartDate.UTC(), run.EndDate.UTC(),
		run.InitialCapital, string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create backtest run: %w", err)
	}
	return nil
}

// MarkRunning transitions a run to RUNNING and stamps started_at.
func (r *BacktestRepository) MarkRunning(id string, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE backtest_runs SET status = 'RUNNING', started_at = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run %s running: %w", id, err)
	}
	return nil
}

// Complete finalizes a run's summary statistics and marks it COMPLETED.
func (r *BacktestRepository) Complete(run domain.BacktestRun) error {
	_, err := r.db.Exec(
		`UPDATE backtest_runs SET
		    status = 'COMPLETED', final_capital = ?, return_pct = ?, total_trades = ?,
		    winning_trades = ?, losing_trades = ?, win_rate = ?, max_drawdown_pct = ?,
		    sharpe = ?, sortino = ?, completed_at = ?
		 WHERE id = ?`,
		run.FinalCapital, run.ReturnPct, run.TotalTrades, run.WinningTrades, run.LosingTrades,
		run.WinRate, run.MaxDrawdownPct, run.Sharpe, run.Sortino, run.CompletedAt.UTC(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}
	return nil
}

// Fail marks a run FAILED with an error message.
func (r *BacktestRepository) Fail(id, errMsg string, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE backtest_runs SET status = 'FAILED', error = ?, completed_at = ? WHERE id = ?`,
		errMsg, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to fail run %s: %w", id, err)
	}
	return nil
}

// GetRun returns a run by id, or nil if not found.
func (r *BacktestRepository) GetRun(id string) (*domain.BacktestRun, error) {
	row := r.db.QueryRow(
		`SELECT id, user_id, name, strategy_config, start_date, end_date, initial_capital, status,
		        final_capital, return_pct, total_trades, winning_trades, losing_trades, win_rate,
		        max_drawdown_pct, sharpe, sortino, error, started_at, completed_at
		 FROM backtest_runs WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ForUser lists a user's backtest runs, most recent first.
func (r *BacktestRepository) ForUser(userID string) ([]domain.BacktestRun, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, name, strategy_config, start_date, end_date, initial_capital, status,
		        final_capital, return_pct, total_trades, winning_trades, losing_trades, win_rate,
		        max_drawdown_pct, sharpe, sortino, error, started_at, completed_at
		 FROM backtest_runs WHERE user_id = ? ORDER BY started_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtest runs for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(s rowScanner) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	var status string
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&run.ID, &run.UserID, &run.Name, &run.StrategyConfig, &run.StartDate, &run.EndDate,
		&run.InitialCapital, &status, &run.FinalCapital, &run.ReturnPct, &run.TotalTrades,
		&run.WinningTrades, &run.LosingTrades, &run.WinRate, &run.MaxDrawdownPct, &run.Sharpe,
		&run.Sortino, &run.Error, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = domain.BacktestStatus(status)
	run.StartedAt = startedAt.Time
	run.CompletedAt = completedAt.Time
	return &run, nil
}

// InsertTrade records one simulated fill.
func (r *BacktestRepository) InsertTrade(t domain.BacktestTrade) error {
	var pl interface{}
	if t.ProfitLoss != nil {
		pl = *t.ProfitLoss
	}
	_, err := r.db.Exec(
		`INSERT INTO backtest_trades (id, run_id, symbol, side, quantity, price, total_amount, profit_loss, reasoning, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RunID, t.Symbol, string(t.Side), t.Quantity, t.Price, t.TotalAmount, pl, t.Reasoning, t.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest trade: %w", err)
	}
	return nil
}

// TradesForRun returns a run's simulated trades in execution order.
func (r *BacktestRepository) TradesForRun(runID string) ([]domain.BacktestTrade, error) {
	rows, err := r.db.Query(
		`SELECT id, run_id, symbol, side, quantity, price, total_amount, profit_loss, reasoning, executed_at
		 FROM backtest_trades WHERE run_id = ? ORDER BY executed_at ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtest trades for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.BacktestTrade
	for rows.Next() {
		var t domain.BacktestTrade
		var side string
		var pl sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.RunID, &t.Symbol, &side, &t.Quantity, &t.Price, &t.TotalAmount, &pl, &t.Reasoning, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest trade: %w", err)
		}
		t.Side = domain.TradeSide(side)
		if pl.Valid {
			v := pl.Float64
			t.ProfitLoss = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertDailyStats records one day's portfolio snapshot for a run.
func (r *BacktestRepository) InsertDailyStats(s domain.BacktestDailyStats, holdingsJSON []byte) error {
	_, err := r.db.Exec(
		`INSERT INTO backtest_daily_stats (
		    run_id, date, portfolio_value, cash, invested, daily_return_pct,
		    cumulative_return, drawdown_pct, holdings, regime
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Date.UTC(), s.PortfolioValue, s.Cash, s.Invested, s.DailyReturnPct,
		s.CumulativeReturn, s.DrawdownPct, string(holdingsJSON), s.Regime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert daily stats: %w", err)
	}
	return nil
}

// DailyStatsForRun returns a run's equity curve in date order. holdingsJSON
// is returned raw; callers unmarshal it (the repository stays free of a
// domain-specific JSON dependency).
func (r *BacktestRepository) DailyStatsForRun(runID string) ([]domain.BacktestDailyStats, [][]byte, error) {
	rows, err := r.db.Query(
		`SELECT run_id, date, portfolio_value, cash, invested, daily_return_pct,
		        cumulative_return, drawdown_pct, holdings, regime
		 FROM backtest_daily_stats WHERE run_id = ? ORDER BY date ASC`,
		runID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list daily stats for %s: %w", runID, err)
	}
	defer rows.Close()

	var stats []domain.BacktestDailyStats
	var raw [][]byte
	for rows.Next() {
		var s domain.BacktestDailyStats
		var holdings string
		if err := rows.Scan(&s.RunID, &s.Date, &s.PortfolioValue, &s.Cash, &s.Invested, &s.DailyReturnPct,
			&s.CumulativeReturn, &s.DrawdownPct, &holdings, &s.Regime); err != nil {
			return nil, nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats = append(stats, s)
		raw = append(raw, []byte(holdings))
	}
	return stats, raw, rows.Err()
}
