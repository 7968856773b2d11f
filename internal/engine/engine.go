// Package engine implements the auto-trading engine (C8): consuming a
// signal ratio, sizing and validating the resulting order via the risk
// manager, submitting it to the brokerage adapter, and recording the
// outcome.
package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/risk"
)

// Decision is the outcome of processing a signal.
type Decision string

const (
	DecisionNone Decision = "NONE" // auto-trading disabled
	DecisionHold Decision = "HOLD" // ratio fell between the thresholds
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
)

// Holdings is the holdings-read/write contract the engine needs beyond
// what risk.Holdings already covers.
type Holdings interface {
	Get(userID, symbol string) (*domain.AccountHolding, error)
	All(userID string) ([]domain.AccountHolding, error)
}

// Trades persists executed/failed orders. Satisfied by
// *database.TradeRepository.
type Trades interface {
	RecordExecution(t domain.TradeHistory) error
	RecordFailure(t domain.TradeHistory) error
}

// Alerts is the subset of the observability package's publisher the
// engine needs to notify on trade execution and emergency stops.
type Alerts interface {
	Info(title, message string)
	Critical(title, message string)
}

// Result is the outcome of processing one signal for one user.
type Result struct {
	Decision Decision
	Trade    *domain.TradeHistory
	Reason   string
}

// Action is one step taken by MonitorPositions.
type Action struct {
	Symbol string
	Result Result
}

// Engine drives one user's auto-trading lifecycle. A fresh Engine is
// created per user by the Registry below so state never crosses accounts.
type Engine struct {
	userID        string
	broker        broker.Client
	holdings      Holdings
	trades        Trades
	risk          *risk.Manager
	alerts        Alerts
	log           zerolog.Logger
	now           func() time.Time
	isRunning     bool
	lastCheckTime time.Time
}

// New creates an engine for one user.
func New(userID string, brokerClient broker.Client, holdings Holdings, trades Trades, riskManager *risk.Manager, alerts Alerts, log zerolog.Logger) *Engine {
	return &Engine{
		userID:   userID,
		broker:   brokerClient,
		holdings: holdings,
		trades:   trades,
		risk:     riskManager,
		alerts:   alerts,
		log:      log.With().Str("component", "auto_trade_engine").Str("user_id", userID).Logger(),
		now:      time.Now,
	}
}

// Start marks the engine running. Requires cfg.Enabled; callers persist
// the config separately.
func (e *Engine) Start(cfg domain.AutoTradeConfig) error {
	if !cfg.Enabled {
		return fmt.Errorf("cannot start: config is not enabled")
	}
	e.isRunning = true
	return nil
}

// Stop marks the engine stopped and logs the reason. Callers are
// responsible for persisting cfg.Enabled=false.
func (e *Engine) Stop(reason string) {
	e.isRunning = false
	e.log.Info().Str("reason", reason).Msg("auto-trading engine stopped")
}

// IsRunning reports the engine's lifecycle state.
func (e *Engine) IsRunning() bool { return e.isRunning }

// LastCheckTime returns the timestamp of the most recent ProcessSignal or
// MonitorPositions call.
func (e *Engine) LastCheckTime() time.Time { return e.lastCheckTime }
