// Package backtest implements the backtest engine (C10): a deterministic
// historical replay of the signal → decision → execution loop over stored
// prices and sentiments, reusing the live signal generator and risk
// manager's stop-loss check exactly rather than a parallel implementation
// (spec §4.10, Open Question resolved as option (a)).
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/risk"
	"github.com/aristath/sentinel/internal/signal"
)

const tradingDaysPerYear = 252

// Runs persists run lifecycle transitions and the trades/daily stats
// produced by a replay. Satisfied by *database.BacktestRepository.
type Runs interface {
	MarkRunning(id string, at time.Time) error
	Complete(run domain.BacktestRun) error
	Fail(id, errMsg string, at time.Time) error
	InsertTrade(t domain.BacktestTrade) error
	InsertDailyStats(s domain.BacktestDailyStats, holdingsJSON []byte) error
}

// Prices supplies the historical price series a replay walks day by day.
// Satisfied by *database.PriceRepository.
type Prices interface {
	TradingDays(from, to time.Time) ([]time.Time, error)
	SymbolsOnDay(day time.Time) ([]string, error)
	PriceOnDay(symbol string, day time.Time) (*domain.StockPrice, error)
}

// Request describes one historical replay. StrategyConfig mirrors the
// subset of domain.AutoTradeConfig a replay actually consults: threshold
// and sizing parameters, not live-only concerns like the trading window.
type Request struct {
	RunID           string
	UserID          string
	Symbols         []string // empty means every symbol with stored prices
	StartDate       time.Time
	EndDate         time.Time
	InitialCapital  float64
	BuyThreshold    int
	SellThreshold   int
	StopLossPct     float64
	MaxPositionSize float64
}

// Engine replays a strategy against stored history.
type Engine struct {
	runs   Runs
	prices Prices
	signal *signal.Generator
	risk   *risk.Manager
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a backtest engine. The signal generator passed in should be
// constructed with a nil signal.VIXSource: a backtest has no live VIX feed
// for historical dates, so C6's own fallback-to-cfg.FallbackVIX path
// (internal/signal/generator.go's resolveVIX) is reused as-is rather than
// built twice.
func New(runs Runs, prices Prices, signalGen *signal.Generator, riskManager *risk.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		runs:   runs,
		prices: prices,
		signal: signalGen,
		risk:   riskManager,
		log:    log.With().Str("component", "backtest_engine").Logger(),
		now:    time.Now,
	}
}

type position struct {
	Quantity float64
	AvgCost  float64
}

// Run executes a replay end to end, persisting every trade and daily
// snapshot as it goes, and finalizes the run's status. An error raised
// during the replay marks the run FAILED with that error's message before
// it is returned. A failure to persist the RUNNING or COMPLETED transition
// is returned as-is, without marking the run FAILED.
func (e *Engine) Run(ctx context.Context, req Request) error {
	if err := e.runs.MarkRunning(req.RunID, e.now()); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	days, err := e.prices.TradingDays(req.StartDate, req.EndDate)
	if err != nil {
		return e.fail(req.RunID, fmt.Errorf("failed to enumerate trading days: %w", err))
	}
	if len(days) == 0 {
		return e.fail(req.RunID, fmt.Errorf("no trading days with stored prices in range"))
	}

	wanted := map[string]struct{}{}
	for _, s := range req.Symbols {
		wanted[s] = struct{}{}
	}

	holdings := map[string]*position{}
	cash := req.InitialCapital
	peakValue := req.InitialCapital
	prevValue := req.InitialCapital
	maxDrawdown := 0.0

	var dailyReturns, negativeReturns []float64
	var totalTrades, winningTrades, losingTrades int

	for _, day := range days {
		eligible, err := e.prices.SymbolsOnDay(day)
		if err != nil {
			return e.fail(req.RunID, fmt.Errorf("failed to list symbols on %s: %w", day.Format("2006-01-02"), err))
		}
		if len(wanted) > 0 {
			eligible = intersect(eligible, wanted)
		}

		cash = e.applyStopLosses(req, day, holdings, cash, &totalTrades, &winningTrades, &losingTrades)
		cash = e.applySignals(ctx, req, day, eligible, holdings, cash, &totalTrades, &winningTrades, &losingTrades)

		portfolioValue, holdingsSnapshot := e.valuePortfolio(day, holdings, cash)
		if portfolioValue > peakValue {
			peakValue = portfolioValue
		}
		drawdown := 0.0
		if peakValue > 0 {
			drawdown = (peakValue - portfolioValue) / peakValue * 100
		}
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		dailyReturn := 0.0
		if prevValue != 0 {
			dailyReturn = (portfolioValue - prevValue) / prevValue * 100
		}
		cumulativeReturn := 0.0
		if req.InitialCapital != 0 {
			cumulativeReturn = (portfolioValue - req.InitialCapital) / req.InitialCapital * 100
		}
		dailyReturns = append(dailyReturns, dailyReturn)
		if dailyReturn < 0 {
			negativeReturns = append(negativeReturns, dailyReturn)
		}

		invested := portfolioValue - cash
		holdingsJSON, err := json.Marshal(holdingsSnapshot)
		if err != nil {
			return e.fail(req.RunID, fmt.Errorf("failed to marshal daily holdings: %w", err))
		}
		if err := e.runs.InsertDailyStats(domain.BacktestDailyStats{
			RunID:            req.RunID,
			Date:             day,
			PortfolioValue:   portfolioValue,
			Cash:             cash,
			Invested:         invested,
			DailyReturnPct:   dailyReturn,
			CumulativeReturn: cumulativeReturn,
			DrawdownPct:      drawdown,
			Holdings:         holdingsSnapshot,
		}, holdingsJSON); err != nil {
			return e.fail(req.RunID, fmt.Errorf("failed to record daily stats: %w", err))
		}

		prevValue = portfolioValue
	}

	finalCapital := prevValue
	returnPct := 0.0
	if req.InitialCapital != 0 {
		returnPct = (finalCapital - req.InitialCapital) / req.InitialCapital * 100
	}
	winRate := 0.0
	if winningTrades+losingTrades > 0 {
		winRate = float64(winningTrades) / float64(winningTrades+losingTrades) * 100
	}

	run := domain.BacktestRun{
		ID:             req.RunID,
		UserID:         req.UserID,
		InitialCapital: req.InitialCapital,
		Status:         domain.BacktestCompleted,
		FinalCapital:   finalCapital,
		ReturnPct:      returnPct,
		TotalTrades:    totalTrades,
		WinningTrades:  winningTrades,
		LosingTrades:   losingTrades,
		WinRate:        winRate,
		MaxDrawdownPct: maxDrawdown,
		Sharpe:         sharpeRatio(dailyReturns),
		Sortino:        sortinoRatio(dailyReturns, negativeReturns),
		CompletedAt:    e.now(),
	}
	if err := e.runs.Complete(run); err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return nil
}

func (e *Engine) fail(runID string, cause error) error {
	if err := e.runs.Fail(runID, cause.Error(), e.now()); err != nil {
		e.log.Error().Err(err).Str("run_id", runID).Msg("failed to persist run failure")
	}
	return cause
}

// applyStopLosses sweeps every open position for a stop-loss breach at the
// day's price, reusing risk.Manager.CheckStopLoss exactly.
func (e *Engine) applyStopLosses(req Request, day time.Time, holdings map[string]*position, cash float64, totalTrades, winningTrades, losingTrades *int) float64 {
	cfg := domain.AutoTradeConfig{UserID: req.UserID, StopLossPct: req.StopLossPct}

	symbols := make([]string, 0, len(holdings))
	for s := range holdings {
		symbols = append(symbols, s)
	}
	for _, symbol := range symbols {
		pos := holdings[symbol]
		priceRow, err := e.prices.PriceOnDay(symbol, day)
		if err != nil || priceRow == nil {
			continue
		}
		holding := domain.AccountHolding{UserID: req.UserID, Symbol: symbol, Quantity: pos.Quantity, AvgCost: pos.AvgCost}
		decision := e.risk.CheckStopLoss(cfg, holding, priceRow.Last)
		if !decision.ShouldSell {
			continue
		}
		cash += e.executeSell(req.RunID, symbol, holdings, decision.Quantity, priceRow.Last, day, decision.Reason, totalTrades, winningTrades, losingTrades)
	}
	return cash
}

// applySignals computes the day's signal per eligible symbol by reusing
// signal.Generator.Calculate unmodified, and converts threshold crossings
// into buys and sells per spec §4.10's explicit sizing rule.
func (e *Engine) applySignals(ctx context.Context, req Request, day time.Time, eligible []string, holdings map[string]*position, cash float64, totalTrades, winningTrades, losingTrades *int) float64 {
	for _, symbol := range eligible {
		result, err := e.signal.Calculate(ctx, day)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", symbol).Time("day", day).Msg("signal calculation failed, skipping symbol for day")
			continue
		}

		_, held := holdings[symbol]
		switch {
		case result.Ratio >= req.BuyThreshold && !held:
			priceRow, err := e.prices.PriceOnDay(symbol, day)
			if err != nil || priceRow == nil || priceRow.Last <= 0 {
				continue
			}
			budget := math.Min(req.MaxPositionSize, 0.9*cash)
			qty := math.Floor(budget / priceRow.Last)
			if qty < 1 {
				continue
			}
			cost := qty * priceRow.Last
			cash -= cost
			holdings[symbol] = &position{Quantity: qty, AvgCost: priceRow.Last}
			*totalTrades++
			if err := e.runs.InsertTrade(domain.BacktestTrade{
				ID:          fmt.Sprintf("%s-%s-%s-buy", req.RunID, symbol, day.Format("20060102")),
				RunID:       req.RunID,
				Symbol:      symbol,
				Side:        domain.SideBuy,
				Quantity:    qty,
				Price:       priceRow.Last,
				TotalAmount: cost,
				Reasoning:   fmt.Sprintf("signal ratio %d >= buy threshold %d", result.Ratio, req.BuyThreshold),
				ExecutedAt:  day,
			}); err != nil {
				e.log.Error().Err(err).Str("symbol", symbol).Msg("failed to record backtest buy")
			}

		case result.Ratio <= req.SellThreshold && held:
			pos := holdings[symbol]
			priceRow, err := e.prices.PriceOnDay(symbol, day)
			if err != nil || priceRow == nil {
				continue
			}
			cash += e.executeSell(req.RunID, symbol, holdings, pos.Quantity, priceRow.Last, day,
				fmt.Sprintf("signal ratio %d <= sell threshold %d", result.Ratio, req.SellThreshold),
				totalTrades, winningTrades, losingTrades)
		}
	}
	return cash
}

// executeSell closes out qty shares of symbol at price, records the
// BacktestTrade with realized profit/loss, and returns the cash proceeds.
// Win/loss is tallied on SELL trades only, per spec §4.10.
func (e *Engine) executeSell(runID, symbol string, holdings map[string]*position, qty, price float64, day time.Time, reason string, totalTrades, winningTrades, losingTrades *int) float64 {
	pos, ok := holdings[symbol]
	if !ok {
		return 0
	}
	proceeds := qty * price
	pl := (price - pos.AvgCost) * qty

	if qty >= pos.Quantity {
		delete(holdings, symbol)
	} else {
		pos.Quantity -= qty
	}

	*totalTrades++
	if pl > 0 {
		*winningTrades++
	} else {
		*losingTrades++
	}

	if err := e.runs.InsertTrade(domain.BacktestTrade{
		ID:          fmt.Sprintf("%s-%s-%s-sell", runID, symbol, day.Format("20060102")),
		RunID:       runID,
		Symbol:      symbol,
		Side:        domain.SideSell,
		Quantity:    qty,
		Price:       price,
		TotalAmount: proceeds,
		ProfitLoss:  &pl,
		Reasoning:   reason,
		ExecutedAt:  day,
	}); err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("failed to record backtest sell")
	}

	return proceeds
}

// valuePortfolio marks every open position to the day's price (falling
// back to average cost if no print exists for that day) and returns the
// total portfolio value plus a symbol->quantity snapshot.
func (e *Engine) valuePortfolio(day time.Time, holdings map[string]*position, cash float64) (float64, map[string]float64) {
	value := cash
	snapshot := make(map[string]float64, len(holdings))
	for symbol, pos := range holdings {
		last := pos.AvgCost
		if priceRow, err := e.prices.PriceOnDay(symbol, day); err == nil && priceRow != nil {
			last = priceRow.Last
		}
		value += pos.Quantity * last
		snapshot[symbol] = pos.Quantity
	}
	return value, snapshot
}

func intersect(symbols []string, wanted map[string]struct{}) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := wanted[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// sharpeRatio implements spec §4.10's Sharpe formula:
// mean(daily_returns) / stdev(daily_returns) * sqrt(252).
func sharpeRatio(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	mean := stat.Mean(dailyReturns, nil)
	sd := stat.StdDev(dailyReturns, nil)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(tradingDaysPerYear)
}

// sortinoRatio implements spec §4.10's Sortino formula: the same mean over
// daily returns, but divided by the standard deviation of the negative
// subset only.
func sortinoRatio(dailyReturns, negativeReturns []float64) float64 {
	if len(dailyReturns) < 2 || len(negativeReturns) < 2 {
		return 0
	}
	mean := stat.Mean(dailyReturns, nil)
	downside := stat.StdDev(negativeReturns, nil)
	if downside == 0 {
		return 0
	}
	return mean / downside * math.Sqrt(tradingDaysPerYear)
}
