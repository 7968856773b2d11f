package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// ConfigRepository persists AutoTradeConfig rows in trading.db.
type ConfigRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewConfigRepository creates a config repository over the trading database.
func NewConfigRepository(db *sql.DB, log zerolog.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, log: log.With().Str("repo", "config").Logger()}
}

// Get returns a user's auto-trade config, or nil if never configured.
func (r *ConfigRepository) Get(userID string) (*domain.AutoTradeConfig, error) {
	row := r.db.QueryRow(
		`SELECT user_id, enabled, max_total_invested, max_position_size, risk_level,
		        buy_threshold, sell_threshold, stop_loss_pct, daily_loss_limit,
		        window_start, window_end, allowed_symbols, excluded_symbols, notify_target
		 FROM auto_trade_configs WHERE user_id = ?`,
		userID,
	)
	return scanConfig(row)
}

// All returns every configured user's auto-trade config, used by the
// scheduler to fan out signal processing each tick.
func (r *ConfigRepository) All() ([]domain.AutoTradeConfig, error) {
	rows, err := r.db.Query(
		`SELECT user_id, enabled, max_total_invested, max_position_size, risk_level,
		        buy_threshold, sell_threshold, stop_loss_pct, daily_loss_limit,
		        window_start, window_end, allowed_symbols, excluded_symbols, notify_target
		 FROM auto_trade_configs`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto trade configs: %w", err)
	}
	defer rows.Close()

	var out []domain.AutoTradeConfig
	for rows.Next() {
		cfg, err := scanConfigRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// Enabled returns every config with enabled = true.
func (r *ConfigRepository) Enabled() ([]domain.AutoTradeConfig, error) {
	rows, err := r.db.Query(
		`SELECT user_id, enabled, max_total_invested, max_position_size, risk_level,
		        buy_threshold, sell_threshold, stop_loss_pct, daily_loss_limit,
		        window_start, window_end, allowed_symbols, excluded_symbols, notify_target
		 FROM auto_trade_configs WHERE enabled = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled auto trade configs: %w", err)
	}
	defer rows.Close()

	var out []domain.AutoTradeConfig
	for rows.Next() {
		cfg, err := scanConfigRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a user's config.
func (r *ConfigRepository) Upsert(cfg domain.AutoTradeConfig) error {
	var dailyLoss interface{}
	if cfg.DailyLossLimit != nil {
		dailyLoss = *cfg.DailyLossLimit
	}

	_, err := r.db.Exec(
		`INSERT INTO auto_trade_configs (
		    user_id, enabled, max_total_invested, max_position_size, risk_level,
		    buy_threshold, sell_threshold, stop_loss_pct, daily_loss_limit,
		    window_start, window_end, allowed_symbols, excluded_symbols, notify_target
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		    enabled = excluded.enabled,
		    max_total_invested = excluded.max_total_invested,
		    max_position_size = excluded.max_position_size,
		    risk_level = excluded.risk_level,
		    buy_threshold = excluded.buy_threshold,
		    sell_threshold = excluded.sell_threshold,
		    stop_loss_pct = excluded.stop_loss_pct,
		    daily_loss_limit = excluded.daily_loss_limit,
		    window_start = excluded.window_start,
		    window_end = excluded.window_end,
		    allowed_symbols = excluded.allowed_symbols,
		    excluded_symbols = excluded.excluded_symbols,
		    notify_target = excluded.notify_target`,
		cfg.UserID, cfg.Enabled, cfg.MaxTotalInvested, cfg.MaxPositionSize, string(cfg.RiskLevel),
		cfg.BuyThreshold, cfg.SellThreshold, cfg.StopLossPct, dailyLoss,
		cfg.Window.Start.Format("15:04:05"), cfg.Window.End.Format("15:04:05"),
		joinSet(cfg.AllowedSymbols), joinSet(cfg.ExcludedSymbols), cfg.NotifyTarget,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert auto trade config for %s: %w", cfg.UserID, err)
	}
	return nil
}

// SetEnabled flips a config's enabled flag, driving the DISABLED<->RUNNING
// state transition.
func (r *ConfigRepository) SetEnabled(userID string, enabled bool) error {
	res, err := r.db.Exec(`UPDATE auto_trade_configs SET enabled = ? WHERE user_id = ?`, enabled, userID)
	if err != nil {
		return fmt.Errorf("failed to set enabled for %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no auto trade config for user %s", userID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row *sql.Row) (*domain.AutoTradeConfig, error) {
	cfg, err := scanConfigGeneric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cfg, err
}

func scanConfigRow(rows *sql.Rows) (*domain.AutoTradeConfig, error) {
	return scanConfigGeneric(rows)
}

func scanConfigGeneric(s rowScanner) (*domain.AutoTradeConfig, error) {
	var cfg domain.AutoTradeConfig
	var riskLevel, windowStart, windowEnd, allowed, excluded string
	var dailyLoss sql.NullFloat64

	err := s.Scan(
		&cfg.UserID, &cfg.Enabled, &cfg.MaxTotalInvested, &cfg.MaxPositionSize, &riskLevel,
		&cfg.BuyThreshold, &cfg.SellThreshold, &cfg.StopLossPct, &dailyLoss,
		&windowStart, &windowEnd, &allowed, &excluded, &cfg.NotifyTarget,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan auto trade config: %w", err)
	}

	cfg.RiskLevel = domain.RiskLevel(riskLevel)
	if dailyLoss.Valid {
		v := dailyLoss.Float64
		cfg.DailyLossLimit = &v
	}
	cfg.Window.Start, err = time.Parse("15:04:05", windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to parse window_start %q: %w", windowStart, err)
	}
	cfg.Window.End, err = time.Parse("15:04:05", windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse window_end %q: %w", windowEnd, err)
	}
	cfg.AllowedSymbols = splitSet(allowed)
	cfg.ExcludedSymbols = splitSet(excluded)
	return &cfg, nil
}

func joinSet(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return strings.Join(out, ",")
}

func splitSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out[part] = struct{}{}
		}
	}
	return out
}
