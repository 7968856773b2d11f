package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// LearningRepository persists extracted trade patterns, versioned learned
// strategies, and learning session bookkeeping in learning.db.
type LearningRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLearningRepository creates a learning repository over the learning database.
func NewLearningRepository(db *sql.DB, log zerolog.Logger) *LearningRepository {
	return &LearningRepository{db: db, log: log.With().Str("repo", "learning").Logger()}
}

// InsertPattern records one extracted trade pattern.
func (r *LearningRepository) InsertPattern(p domain.TradePattern) error {
	_, err := r.db.Exec(
		`INSERT INTO trade_patterns (
		    id, user_id, symbol, pattern_type, entry_signal, holding_duration_seconds,
		    profit_loss_pct, market_regime, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Symbol, string(p.PatternType), p.EntrySignal, int64(p.HoldingDuration.Seconds()),
		p.ProfitLossPct, p.MarketRegime, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade pattern: %w", err)
	}
	return nil
}

// PatternsByType returns all patterns of a type (winning/losing), used as
// the learning subsystem's training set.
func (r *LearningRepository) PatternsByType(patternType domain.PatternType) ([]domain.TradePattern, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, symbol, pattern_type, entry_signal, holding_duration_seconds,
		        profit_loss_pct, market_regime, created_at
		 FROM trade_patterns WHERE pattern_type = ? ORDER BY created_at ASC`,
		string(patternType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns by type: %w", err)
	}
	defer rows.Close()
	return scanPatterns(rows)
}

// AllPatterns returns every stored pattern, oldest first.
func (r *LearningRepository) AllPatterns() ([]domain.TradePattern, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, symbol, pattern_type, entry_signal, holding_duration_seconds,
		        profit_loss_pct, market_regime, created_at
		 FROM trade_patterns ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all patterns: %w", err)
	}
	defer rows.Close()
	return scanPatterns(rows)
}

func scanPatterns(rows *sql.Rows) ([]domain.TradePattern, error) {
	var out []domain.TradePattern
	for rows.Next() {
		var p domain.TradePattern
		var patternType string
		var durationSec int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.Symbol, &patternType, &p.EntrySignal, &durationSec,
			&p.ProfitLossPct, &p.MarketRegime, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade pattern: %w", err)
		}
		p.PatternType = domain.PatternType(patternType)
		p.HoldingDuration = time.Duration(durationSec) * time.Second
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertStrategy adds a new strategy version in inactive state. Activation
// is a separate, transactional step (ActivateStrategy) so at most one
// version per name is ever active, matching the partial unique index.
func (r *LearningRepository) InsertStrategy(s domain.LearnedStrategy) error {
	_, err := r.db.Exec(
		`INSERT INTO learned_strategies (
		    id, name, version, buy_threshold, sell_threshold, stop_loss_pct, risk_level,
		    training_samples, win_rate, profit_factor, is_active, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		s.ID, s.Name, s.Version, s.BuyThreshold, s.SellThreshold, s.StopLossPct, string(s.RiskLevel),
		s.TrainingSamples, s.WinRate, s.ProfitFactor, s.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert learned strategy: %w", err)
	}
	return nil
}

// ActivateStrategy deactivates any currently-active version of the same
// name and activates the given id, atomically.
func (r *LearningRepository) ActivateStrategy(id, name string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin activate transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE learned_strategies SET is_active = 0 WHERE name = ? AND is_active = 1`, name); err != nil {
		return fmt.Errorf("failed to deactivate prior strategy version: %w", err)
	}
	res, err := tx.Exec(`UPDATE learned_strategies SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to activate strategy %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no learned strategy with id %s", id)
	}
	return tx.Commit()
}

// ActiveStrategy returns the currently active version of a named strategy,
// or nil if none is active.
func (r *LearningRepository) ActiveStrategy(name string) (*domain.LearnedStrategy, error) {
	row := r.db.QueryRow(
		`SELECT id, name, version, buy_threshold, sell_threshold, stop_loss_pct, risk_level,
		        training_samples, win_rate, profit_factor, is_active, created_at
		 FROM learned_strategies WHERE name = ? AND is_active = 1`,
		name,
	)
	s, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// StrategyVersions lists every version of a named strategy, newest first.
func (r *LearningRepository) StrategyVersions(name string) ([]domain.LearnedStrategy, error) {
	rows, err := r.db.Query(
		`SELECT id, name, version, buy_threshold, sell_threshold, stop_loss_pct, risk_level,
		        training_samples, win_rate, profit_factor, is_active, created_at
		 FROM learned_strategies WHERE name = ? ORDER BY version DESC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategy versions for %s: %w", name, err)
	}
	defer rows.Close()

	var out []domain.LearnedStrategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanStrategy(s rowScanner) (*domain.LearnedStrategy, error) {
	var strat domain.LearnedStrategy
	var riskLevel string
	var active bool
	err := s.Scan(
		&strat.ID, &strat.Name, &strat.Version, &strat.BuyThreshold, &strat.SellThreshold,
		&strat.StopLossPct, &riskLevel, &strat.TrainingSamples, &strat.WinRate, &strat.ProfitFactor,
		&active, &strat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	strat.RiskLevel = domain.RiskLevel(riskLevel)
	strat.IsActive = active
	return &strat, nil
}

// StartSession records the start of a learning run.
func (r *LearningRepository) StartSession(sess domain.LearningSession) error {
	_, err := r.db.Exec(
		`INSERT INTO learning_sessions (id, session_type, started_at, status)
		 VALUES (?, ?, ?, 'RUNNING')`,
		sess.ID, sess.SessionType, sess.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to start learning session: %w", err)
	}
	return nil
}

// CompleteSession finalizes a learning session's counters and status.
func (r *LearningRepository) CompleteSession(sess domain.LearningSession) error {
	_, err := r.db.Exec(
		`UPDATE learning_sessions SET
		    completed_at = ?, patterns_extracted = ?, patterns_analyzed = ?, status = ?, strategy_id = ?
		 WHERE id = ?`,
		sess.CompletedAt.UTC(), sess.PatternsExtracted, sess.PatternsAnalyzed, string(sess.Status),
		nullString(sess.StrategyID), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete learning session %s: %w", sess.ID, err)
	}
	return nil
}
