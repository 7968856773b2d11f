package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/domain"
)

// ProcessSignal implements spec.md §4.8's process_signal: decide BUY/SELL/
// HOLD from the ratio against the config's thresholds, then size,
// validate, submit, and record the resulting trade.
func (e *Engine) ProcessSignal(cfg domain.AutoTradeConfig, symbol string, ratio int, reasoning string) (Result, error) {
	e.lastCheckTime = e.now()

	if !cfg.Enabled {
		return Result{Decision: DecisionNone}, nil
	}

	switch {
	case ratio >= cfg.BuyThreshold:
		return e.processBuy(cfg, symbol, ratio, reasoning)
	case ratio <= cfg.SellThreshold:
		return e.processSell(cfg, symbol, ratio, reasoning)
	default:
		return Result{Decision: DecisionHold}, nil
	}
}

func (e *Engine) processBuy(cfg domain.AutoTradeConfig, symbol string, ratio int, reasoning string) (Result, error) {
	price, err := e.broker.GetStockPrice(symbol)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	balance, err := e.broker.GetAccountBalance()
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch account balance: %w", err)
	}

	qty, err := e.risk.PositionSize(cfg, price.Last, ratio, balance.Cash)
	if err != nil {
		return Result{}, fmt.Errorf("failed to size position: %w", err)
	}
	if qty <= 0 {
		return Result{Decision: DecisionHold, Reason: "computed position size is zero"}, nil
	}

	ok, reason := e.risk.ValidateTrade(cfg, symbol, domain.SideBuy, qty, price.Last, balance.Cash)
	if !ok {
		return Result{Decision: DecisionHold, Reason: reason}, nil
	}

	trade, err := e.submitAndRecord(cfg, symbol, domain.SideBuy, qty, price.Last, ratio, reasoning)
	if err != nil {
		return Result{}, err
	}
	return Result{Decision: DecisionBuy, Trade: trade}, nil
}

func (e *Engine) processSell(cfg domain.AutoTradeConfig, symbol string, ratio int, reasoning string) (Result, error) {
	holding, err := e.holdings.Get(cfg.UserID, symbol)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read holding: %w", err)
	}
	if holding == nil || holding.Quantity <= 0 {
		return Result{Decision: DecisionHold, Reason: "no holding to sell"}, nil
	}

	price, err := e.broker.GetStockPrice(symbol)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	balance, err := e.broker.GetAccountBalance()
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch account balance: %w", err)
	}

	ok, reason := e.risk.ValidateTrade(cfg, symbol, domain.SideSell, holding.Quantity, price.Last, balance.Cash)
	if !ok {
		return Result{Decision: DecisionHold, Reason: reason}, nil
	}

	trade, err := e.submitAndRecord(cfg, symbol, domain.SideSell, holding.Quantity, price.Last, ratio, reasoning)
	if err != nil {
		return Result{}, err
	}
	return Result{Decision: DecisionSell, Trade: trade}, nil
}

// submitAndRecord places the order and writes the resulting TradeHistory
// row (COMPLETED or FAILED), emitting a trade-execution alert on success.
func (e *Engine) submitAndRecord(cfg domain.AutoTradeConfig, symbol string, side domain.TradeSide, qty, refPrice float64, ratio int, reasoning string) (*domain.TradeHistory, error) {
	result, err := e.broker.PlaceOrder(broker.Order{Symbol: symbol, Side: side, Quantity: qty})
	if err != nil {
		return nil, fmt.Errorf("order submission failed: %w", err)
	}

	now := e.now()
	trade := domain.TradeHistory{
		ID:             uuid.NewString(),
		UserID:         cfg.UserID,
		BrokerOrderID:  result.OrderID,
		Symbol:         symbol,
		Side:           side,
		Quantity:       qty,
		SubmittedPrice: refPrice,
		ExecutedPrice:  result.ExecutedPrice,
		TotalAmount:    result.ExecutedPrice * result.ExecutedQty,
		SignalRatio:    ratio,
		Reasoning:      reasoning,
		ExecutedAt:     now,
		CreatedAt:      now,
	}

	if result.Status != broker.OrderFilled {
		trade.Status = domain.TradeFailed
		trade.SubmittedPrice = refPrice
		if err := e.trades.RecordFailure(trade); err != nil {
			return nil, fmt.Errorf("failed to record failed trade: %w", err)
		}
		if e.alerts != nil {
			e.alerts.Info("Trade failed", fmt.Sprintf("%s %s x%.4f: %s", side, symbol, qty, result.Reason))
		}
		return &trade, nil
	}

	trade.Status = domain.TradeCompleted
	if err := e.trades.RecordExecution(trade); err != nil {
		return nil, fmt.Errorf("failed to record executed trade: %w", err)
	}
	if e.alerts != nil {
		e.alerts.Info("Trade executed", fmt.Sprintf("%s %s x%.4f @ %.2f", side, symbol, qty, result.ExecutedPrice))
	}
	return &trade, nil
}

// MonitorPositions checks every holding's stop-loss condition and executes
// an emergency SELL for any breach, per spec.md §4.8.
func (e *Engine) MonitorPositions(cfg domain.AutoTradeConfig) ([]Action, error) {
	e.lastCheckTime = e.now()

	holdings, err := e.holdings.All(cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	var actions []Action
	for _, h := range holdings {
		price, err := e.broker.GetStockPrice(h.Symbol)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", h.Symbol).Msg("failed to fetch quote for stop-loss check")
			continue
		}

		decision := e.risk.CheckStopLoss(cfg, h, price.Last)
		if !decision.ShouldSell {
			continue
		}

		trade, err := e.submitAndRecord(cfg, h.Symbol, domain.SideSell, decision.Quantity, price.Last, 0, decision.Reason)
		if err != nil {
			e.log.Error().Err(err).Str("symbol", h.Symbol).Msg("stop-loss sell failed")
			continue
		}
		actions = append(actions, Action{
			Symbol: h.Symbol,
			Result: Result{Decision: DecisionSell, Trade: trade, Reason: decision.Reason},
		})
	}

	return actions, nil
}
