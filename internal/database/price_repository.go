package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// PriceRepository persists StockPrice rows in market.db.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a price repository over the market database.
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{db: db, log: log.With().Str("repo", "price").Logger()}
}

// Record upserts one price snapshot for (symbol, timestamp).
func (r *PriceRepository) Record(p domain.StockPrice) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO stock_prices (symbol, last_price, open_price, high_price, low_price, volume, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.Last, p.Open, p.High, p.Low, p.Volume, p.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record price for %s: %w", p.Symbol, err)
	}
	return nil
}

// Latest returns the most recent price recorded for a symbol.
func (r *PriceRepository) Latest(symbol string) (*domain.StockPrice, error) {
	row := r.db.QueryRow(
		`SELECT symbol, last_price, open_price, high_price, low_price, volume, timestamp
		 FROM stock_prices WHERE symbol = ? ORDER BY timestamp DESC LIMIT 1`,
		symbol,
	)
	var p domain.StockPrice
	if err := row.Scan(&p.Symbol, &p.Last, &p.Open, &p.High, &p.Low, &p.Volume, &p.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest price for %s: %w", symbol, err)
	}
	return &p, nil
}

// Series returns the ordered price series for symbol within [from, to], the
// daily-close series a backtest walks day by day.
func (r *PriceRepository) Series(symbol string, from, to time.Time) ([]domain.StockPrice, error) {
	rows, err := r.db.Query(
		`SELECT symbol, last_price, open_price, high_price, low_price, volume, timestamp
		 FROM stock_prices WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp ASC`,
		symbol, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series for %s: %w", symbol, err)
	}
	defer rows.Close()
	return scanPrices(rows)
}

// TradingDays returns the distinct, ordered set of timestamps that have at
// least one stored price within [from, to] — the backtest engine's walk
// order.
func (r *PriceRepository) TradingDays(from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT timestamp FROM stock_prices WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading days: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan trading day: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SymbolsOnDay returns the distinct symbols with a stored price at exactly
// the given timestamp.
func (r *PriceRepository) SymbolsOnDay(day time.Time) ([]string, error) {
	rows, err := r.db.Query(`SELECT symbol FROM stock_prices WHERE timestamp = ?`, day.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols on day: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PriceOnDay returns the stored price for symbol at exactly the given
// timestamp, or nil if none exists.
func (r *PriceRepository) PriceOnDay(symbol string, day time.Time) (*domain.StockPrice, error) {
	row := r.db.QueryRow(
		`SELECT symbol, last_price, open_price, high_price, low_price, volume, timestamp
		 FROM stock_prices WHERE symbol = ? AND timestamp = ?`,
		symbol, day.UTC(),
	)
	var p domain.StockPrice
	if err := row.Scan(&p.Symbol, &p.Last, &p.Open, &p.High, &p.Low, &p.Volume, &p.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get price on day for %s: %w", symbol, err)
	}
	return &p, nil
}

// PruneOlderThan deletes price rows older than the cutoff.
func (r *PriceRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM stock_prices WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune prices: %w", err)
	}
	return res.RowsAffected()
}

func scanPrices(rows *sql.Rows) ([]domain.StockPrice, error) {
	var out []domain.StockPrice
	for rows.Next() {
		var p domain.StockPrice
		if err := rows.Scan(&p.Symbol, &p.Last, &p.Open, &p.High, &p.Low, &p.Volume, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
