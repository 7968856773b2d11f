package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// HoldingRepository persists AccountHolding rows in trading.db. It is the
// single place that enforces "delete on qty == 0" — callers never need to
// special-case that themselves.
type HoldingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHoldingRepository creates a holding repository over the trading database.
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{db: db, log: log.With().Str("repo", "holding").Logger()}
}

// Get returns the holding for (userID, symbol), or nil if none exists.
func (r *HoldingRepository) Get(userID, symbol string) (*domain.AccountHolding, error) {
	return r.getTx(r.db, userID, symbol)
}

func (r *HoldingRepository) getTx(q querier, userID, symbol string) (*domain.AccountHolding, error) {
	row := q.QueryRow(
		`SELECT user_id, symbol, quantity, avg_cost, last_price, updated_at
		 FROM account_holdings WHERE user_id = ? AND symbol = ?`,
		userID, symbol,
	)
	var h domain.AccountHolding
	if err := row.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.AvgCost, &h.LastPrice, &h.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holding %s/%s: %w", userID, symbol, err)
	}
	return &h, nil
}

// All returns every holding for a user.
func (r *HoldingRepository) All(userID string) ([]domain.AccountHolding, error) {
	rows, err := r.db.Query(
		`SELECT user_id, symbol, quantity, avg_cost, last_price, updated_at FROM account_holdings WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.AccountHolding
	for rows.Next() {
		var h domain.AccountHolding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.AvgCost, &h.LastPrice, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AllSymbols returns every distinct symbol held by any user with a
// nonzero quantity, the per-minute price poll's base watch-list.
func (r *HoldingRepository) AllSymbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM account_holdings WHERE quantity > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct held symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan held symbol: %w", err)
		}
		out = append(out, symbol)
	}
	return out, rows.Err()
}

// InvestedAmount sums quantity*avg_cost across all of a user's holdings.
func (r *HoldingRepository) InvestedAmount(userID string) (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRow(
		`SELECT SUM(quantity * avg_cost) FROM account_holdings WHERE user_id = ?`, userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum invested amount for %s: %w", userID, err)
	}
	return total.Float64, nil
}

// ApplyBuy increases (or creates) a holding using the weighted-average cost
// formula: new_avg = (old_avg*old_qty + price*qty) / (old_qty+qty). Must be
// called within the same transaction as the TradeHistory insert.
func (r *HoldingRepository) ApplyBuy(tx *sql.Tx, userID, symbol string, qty, price float64, at time.Time) error {
	existing, err := r.getTx(tx, userID, symbol)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err := tx.Exec(
			`INSERT INTO account_holdings (user_id, symbol, quantity, avg_cost, last_price, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			userID, symbol, qty, price, price, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create holding %s/%s: %w", userID, symbol, err)
		}
		return nil
	}

	newQty := existing.Quantity + qty
	newAvg := (existing.AvgCost*existing.Quantity + price*qty) / newQty

	_, err = tx.Exec(
		`UPDATE account_holdings SET quantity = ?, avg_cost = ?, last_price = ?, updated_at = ?
		 WHERE user_id = ? AND symbol = ?`,
		newQty, newAvg, price, at.UTC(), userID, symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding %s/%s: %w", userID, symbol, err)
	}
	return nil
}

// ApplySell decreases a holding by qty, deleting the row when it reaches
// zero. Must be called within the same transaction as the TradeHistory
// insert. Returns the avg cost basis used for the realized P/L computation.
func (r *HoldingRepository) ApplySell(tx *sql.Tx, userID, symbol string, qty float64, at time.Time) (avgCost float64, err error) {
	existing, err := r.getTx(tx, userID, symbol)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("no holding for %s/%s to sell", userID, symbol)
	}

	remaining := existing.Quantity - qty
	switch {
	case remaining <= 0:
		if _, err := tx.Exec(`DELETE FROM account_holdings WHERE user_id = ? AND symbol = ?`, userID, symbol); err != nil {
			return 0, fmt.Errorf("failed to delete exhausted holding %s/%s: %w", userID, symbol, err)
		}
	default:
		_, err := tx.Exec(
			`UPDATE account_holdings SET quantity = ?, updated_at = ? WHERE user_id = ? AND symbol = ?`,
			remaining, at.UTC(), userID, symbol,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to reduce holding %s/%s: %w", userID, symbol, err)
		}
	}

	return existing.AvgCost, nil
}

// UpdateLastPrice syncs the last observed market price without otherwise
// touching the position.
func (r *HoldingRepository) UpdateLastPrice(userID, symbol string, price float64, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE account_holdings SET last_price = ?, updated_at = ? WHERE user_id = ? AND symbol = ?`,
		price, at.UTC(), userID, symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to sync last price for %s/%s: %w", userID, symbol, err)
	}
	return nil
}

// querier abstracts over *sql.DB and *sql.Tx for read helpers reused inside
// and outside a transaction.
type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}
