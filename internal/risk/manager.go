// Package risk implements the risk manager (C7): pre-trade validation,
// position sizing, stop-loss detection, and abnormal-market / emergency
// shutdown handling.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
)

// abnormalVIXThreshold matches spec.md's "VIX > 40 -> abnormal" rule.
const abnormalVIXThreshold = 40.0

// riskMultiplier scales position sizing by the account's configured risk
// appetite.
var riskMultiplier = map[domain.RiskLevel]float64{
	domain.RiskLow:    0.5,
	domain.RiskMedium: 0.75,
	domain.RiskHigh:   1.0,
}

// Holdings is the read contract the manager needs over a user's current
// positions and realized P/L history.
type Holdings interface {
	Get(userID, symbol string) (*domain.AccountHolding, error)
	InvestedAmount(userID string) (float64, error)
	DailyRealizedPL(userID string, day time.Time) (float64, error)
}

// Manager validates and sizes trades against an AutoTradeConfig.
type Manager struct {
	holdings Holdings
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a risk manager.
func New(holdings Holdings, log zerolog.Logger) *Manager {
	return &Manager{
		holdings: holdings,
		log:      log.With().Str("component", "risk_manager").Logger(),
		now:      time.Now,
	}
}

// ValidateTrade applies, in order: enabled check, trading-window check,
// symbol allow/exclude list, the daily-loss governor, and side-specific
// checks (BUY: position/investment/cash limits; SELL: sufficient
// holding). Returns (true, "") when the trade is permitted, otherwise
// (false, reason).
func (m *Manager) ValidateTrade(cfg domain.AutoTradeConfig, symbol string, side domain.TradeSide, qty, price, cash float64) (bool, string) {
	if !cfg.Enabled {
		return false, "auto-trading is disabled"
	}

	if !m.withinTradingWindow(cfg.Window) {
		return false, "outside configured trading window"
	}

	if ok, reason := m.checkSymbolPolicy(cfg, symbol); !ok {
		return false, reason
	}

	if ok, reason := m.checkDailyLossLimit(cfg); !ok {
		return false, reason
	}

	switch side {
	case domain.SideBuy:
		return m.validateBuy(cfg, symbol, qty, price, cash)
	case domain.SideSell:
		return m.validateSell(cfg.UserID, symbol, qty)
	default:
		return false, fmt.Sprintf("unknown trade side %q", side)
	}
}

func (m *Manager) withinTradingWindow(w domain.TradingWindow) bool {
	now := m.now()
	cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
	start := w.Start.Hour()*3600 + w.Start.Minute()*60 + w.Start.Second()
	end := w.End.Hour()*3600 + w.End.Minute()*60 + w.End.Second()
	return cur >= start && cur <= end
}

func (m *Manager) checkSymbolPolicy(cfg domain.AutoTradeConfig, symbol string) (bool, string) {
	if _, excluded := cfg.ExcludedSymbols[symbol]; excluded {
		return false, fmt.Sprintf("symbol %s is excluded", symbol)
	}
	if len(cfg.AllowedSymbols) > 0 {
		if _, allowed := cfg.AllowedSymbols[symbol]; !allowed {
			return false, fmt.Sprintf("symbol %s is not in the allowed list", symbol)
		}
	}
	return true, ""
}

func (m *Manager) checkDailyLossLimit(cfg domain.AutoTradeConfig) (bool, string) {
	if cfg.DailyLossLimit == nil {
		return true, ""
	}
	realized, err := m.holdings.DailyRealizedPL(cfg.UserID, m.now())
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to read daily realized P/L, allowing trade")
		return true, ""
	}
	limit := math.Abs(*cfg.DailyLossLimit)
	if realized < -limit {
		return false, fmt.Sprintf("daily loss limit reached: realized P/L %.2f below -%.2f", realized, limit)
	}
	return true, ""
}

func (m *Manager) validateBuy(cfg domain.AutoTradeConfig, symbol string, qty, price, cash float64) (bool, string) {
	cost := qty * price
	if cost > cfg.MaxPositionSize {
		return false, fmt.Sprintf("order size %.2f exceeds max position size %.2f", cost, cfg.MaxPositionSize)
	}

	invested, err := m.holdings.InvestedAmount(cfg.UserID)
	if err != nil {
		return false, fmt.Sprintf("failed to read invested amount: %v", err)
	}
	if invested+cost > cfg.MaxTotalInvested {
		return false, fmt.Sprintf("investing %.2f more would exceed max total invested %.2f", cost, cfg.MaxTotalInvested)
	}

	if cash < cost {
		return false, fmt.Sprintf("insufficient cash: need %.2f, have %.2f", cost, cash)
	}

	return true, ""
}

func (m *Manager) validateSell(userID, symbol string, qty float64) (bool, string) {
	holding, err := m.holdings.Get(userID, symbol)
	if err != nil {
		return false, fmt.Sprintf("failed to read holding: %v", err)
	}
	if holding == nil || holding.Quantity < qty {
		return false, fmt.Sprintf("insufficient holding of %s to sell %.4f", symbol, qty)
	}
	return true, ""
}

// PositionSize computes the order quantity for a BUY decision, scaling the
// account's max position size by risk appetite and signal strength, then
// clamping to the remaining investment headroom and available cash.
func (m *Manager) PositionSize(cfg domain.AutoTradeConfig, price float64, signalRatio int, cash float64) (float64, error) {
	invested, err := m.holdings.InvestedAmount(cfg.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to read invested amount: %w", err)
	}

	base := cfg.MaxPositionSize
	multiplier := riskMultiplier[cfg.RiskLevel]
	if multiplier == 0 {
		multiplier = riskMultiplier[domain.RiskMedium]
	}
	signalFactor := float64(signalRatio) / 100.0

	target := base * multiplier * signalFactor

	headroom := cfg.MaxTotalInvested - invested
	if target > headroom {
		target = headroom
	}
	if target > cash {
		target = cash
	}
	if target <= 0 {
		return 0, nil
	}
	if price <= 0 {
		return 0, nil
	}

	qty := math.Floor(target / price)
	if qty == 0 && target >= price {
		qty = 1
	}
	return qty, nil
}

// StopLossDecision describes an automatic stop-loss exit.
type StopLossDecision struct {
	ShouldSell bool
	Quantity   float64
	Reason     string
}

// CheckStopLoss compares a holding's unrealized loss against the
// configured stop-loss percentage.
func (m *Manager) CheckStopLoss(cfg domain.AutoTradeConfig, holding domain.AccountHolding, currentPrice float64) StopLossDecision {
	if holding.AvgCost <= 0 {
		return StopLossDecision{}
	}
	changePct := ((currentPrice - holding.AvgCost) / holding.AvgCost) * 100
	if changePct <= -math.Abs(cfg.StopLossPct) {
		return StopLossDecision{
			ShouldSell: true,
			Quantity:   holding.Quantity,
			Reason:     fmt.Sprintf("STOP-LOSS: %s down %.2f%% from avg cost %.2f", holding.Symbol, changePct, holding.AvgCost),
		}
	}
	return StopLossDecision{}
}

// DetectAbnormalMarket reports whether the given VIX reading indicates
// abnormal market conditions (VIX > 40).
func DetectAbnormalMarket(vix float64) bool {
	return vix > abnormalVIXThreshold
}

// AlertPublisher emits the CRITICAL alert accompanying an emergency stop.
// Satisfied by the C13 observability package's alert sink.
type AlertPublisher interface {
	Critical(title, message string)
}

// EmergencyStop disables a config and emits a CRITICAL alert. Callers are
// responsible for persisting the disabled config via the config
// repository; this only mutates the in-memory value passed by pointer and
// raises the alert.
func EmergencyStop(cfg *domain.AutoTradeConfig, reason string, alerts AlertPublisher) {
	cfg.Enabled = false
	if alerts != nil {
		alerts.Critical("Auto-trading emergency stop", reason)
	}
}
