package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// TradeRepository persists the append-only trade_history ledger and
// coordinates its atomic write with the holdings update it implies.
type TradeRepository struct {
	db       *sql.DB
	holdings *HoldingRepository
	log      zerolog.Logger
}

// NewTradeRepository creates a trade repository over the trading database.
func NewTradeRepository(db *sql.DB, holdings *HoldingRepository, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{db: db, holdings: holdings, log: log.With().Str("repo", "trade").Logger()}
}

// RecordExecution inserts a completed trade and applies its effect on the
// holding in a single transaction, so a crash can never leave the ledger and
// the position out of sync. For SELL trades it also computes and stamps the
// realized profit_loss before the row is persisted.
func (r *TradeRepository) RecordExecution(t domain.TradeHistory) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trade transaction: %w", err)
	}
	defer tx.Rollback()

	switch t.Side {
	case domain.SideBuy:
		if err := r.holdings.ApplyBuy(tx, t.UserID, t.Symbol, t.Quantity, t.ExecutedPrice, t.ExecutedAt); err != nil {
			return fmt.Errorf("failed to apply buy to holdings: %w", err)
		}
	case domain.SideSell:
		avgCost, err := r.holdings.ApplySell(tx, t.UserID, t.Symbol, t.Quantity, t.ExecutedAt)
		if err != nil {
			return fmt.Errorf("failed to apply sell to holdings: %w", err)
		}
		pl := (t.ExecutedPrice - avgCost) * t.Quantity
		t.ProfitLoss = &pl
	default:
		return fmt.Errorf("unknown trade side %q", t.Side)
	}

	var pl interface{}
	if t.ProfitLoss != nil {
		pl = *t.ProfitLoss
	}

	_, err = tx.Exec(
		`INSERT INTO trade_history (
		    id, user_id, broker_order_id, symbol, side, quantity, submitted_price,
		    executed_price, total_amount, profit_loss, status, signal_ratio, reasoning,
		    executed_at, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.BrokerOrderID, t.Symbol, string(t.Side), t.Quantity, t.SubmittedPrice,
		t.ExecutedPrice, t.TotalAmount, pl, string(t.Status), t.SignalRatio, t.Reasoning,
		t.ExecutedAt.UTC(), t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade history: %w", err)
	}

	return tx.Commit()
}

// RecordFailure inserts a FAILED trade row without touching holdings — used
// when the broker rejects an order after risk checks already passed.
func (r *TradeRepository) RecordFailure(t domain.TradeHistory) error {
	t.Status = domain.TradeFailed
	_, err := r.db.Exec(
		`INSERT INTO trade_history (
		    id, user_id, broker_order_id, symbol, side, quantity, submitted_price,
		    executed_price, total_amount, profit_loss, status, signal_ratio, reasoning,
		    executed_at, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.BrokerOrderID, t.Symbol, string(t.Side), t.Quantity, t.SubmittedPrice,
		t.ExecutedPrice, t.TotalAmount, string(t.Status), t.SignalRatio, t.Reasoning,
		t.ExecutedAt.UTC(), t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert failed trade: %w", err)
	}
	return nil
}

// ForUser returns a user's trade history, most recent first.
func (r *TradeRepository) ForUser(userID string, limit int) ([]domain.TradeHistory, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, broker_order_id, symbol, side, quantity, submitted_price,
		        executed_price, total_amount, profit_loss, status, signal_ratio, reasoning,
		        executed_at, created_at
		 FROM trade_history WHERE user_id = ? ORDER BY executed_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// DailyRealizedPL sums realized profit_loss for a user's SELL trades on a
// calendar day, the input to the risk manager's daily-loss governor.
func (r *TradeRepository) DailyRealizedPL(userID string, day time.Time) (float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var total sql.NullFloat64
	err := r.db.QueryRow(
		`SELECT SUM(profit_loss) FROM trade_history
		 WHERE user_id = ? AND side = 'SELL' AND status = 'COMPLETED'
		   AND executed_at >= ? AND executed_at < ?`,
		userID, start, end,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily realized P/L for %s: %w", userID, err)
	}
	return total.Float64, nil
}

// BuySellPairs returns completed BUY/SELL pairs for a symbol ordered by
// execution time, the raw material the learning subsystem turns into
// TradePattern rows.
func (r *TradeRepository) BuySellPairs(userID, symbol string) ([]domain.TradeHistory, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, broker_order_id, symbol, side, quantity, submitted_price,
		        executed_price, total_amount, profit_loss, status, signal_ratio, reasoning,
		        executed_at, created_at
		 FROM trade_history
		 WHERE user_id = ? AND symbol = ? AND status = 'COMPLETED'
		 ORDER BY executed_at ASC`,
		userID, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list buy/sell pairs for %s/%s: %w", userID, symbol, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// UserSymbol identifies one user/symbol pair that has at least one
// completed trade, the unit BuySellPairs operates over.
type UserSymbol struct {
	UserID string
	Symbol string
}

// DistinctUserSymbols lists every (user, symbol) pair with completed
// trades, the candidate set the learning subsystem walks when extracting
// patterns across the whole ledger.
func (r *TradeRepository) DistinctUserSymbols() ([]UserSymbol, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT user_id, symbol FROM trade_history WHERE status = 'COMPLETED'`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct user/symbol pairs: %w", err)
	}
	defer rows.Close()

	var out []UserSymbol
	for rows.Next() {
		var us UserSymbol
		if err := rows.Scan(&us.UserID, &us.Symbol); err != nil {
			return nil, fmt.Errorf("failed to scan user/symbol pair: %w", err)
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func scanTrades(rows *sql.Rows) ([]domain.TradeHistory, error) {
	var out []domain.TradeHistory
	for rows.Next() {
		var t domain.TradeHistory
		var side, status string
		var pl sql.NullFloat64

		if err := rows.Scan(
			&t.ID, &t.UserID, &t.BrokerOrderID, &t.Symbol, &side, &t.Quantity, &t.SubmittedPrice,
			&t.ExecutedPrice, &t.TotalAmount, &pl, &status, &t.SignalRatio, &t.Reasoning,
			&t.ExecutedAt, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		t.Side = domain.TradeSide(side)
		t.Status = domain.TradeStatus(status)
		if pl.Valid {
			v := pl.Float64
			t.ProfitLoss = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
