// Package learning implements the learning subsystem (C11): extracting
// realized buy/sell trade pairs into TradePattern rows and periodically
// deriving a new LearnedStrategy version from them.
package learning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/signal"
)

// TradeSource supplies the completed trade ledger pattern extraction walks.
// Satisfied by *database.TradeRepository.
type TradeSource interface {
	DistinctUserSymbols() ([]database.UserSymbol, error)
	BuySellPairs(userID, symbol string) ([]domain.TradeHistory, error)
}

// Patterns persists extracted TradePattern rows. Satisfied by
// *database.LearningRepository.
type Patterns interface {
	InsertPattern(p domain.TradePattern) error
}

// Analyzer extracts TradePattern rows from the realized trade ledger.
type Analyzer struct {
	trades   TradeSource
	patterns Patterns
	log      zerolog.Logger
	now      func() time.Time
}

// NewAnalyzer creates a pattern analyzer.
func NewAnalyzer(trades TradeSource, patterns Patterns, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		trades:   trades,
		patterns: patterns,
		log:      log.With().Str("component", "pattern_analyzer").Logger(),
		now:      time.Now,
	}
}

// ExtractPatterns walks every user/symbol with completed trades, pairs each
// BUY with the next SELL of the same symbol for the same user (FIFO over
// the execution-ordered ledger), and persists one TradePattern per pair. It
// returns the number of patterns extracted.
func (a *Analyzer) ExtractPatterns() (int, error) {
	pairs, err := a.trades.DistinctUserSymbols()
	if err != nil {
		return 0, fmt.Errorf("failed to list user/symbol pairs: %w", err)
	}

	count := 0
	for _, us := range pairs {
		trades, err := a.trades.BuySellPairs(us.UserID, us.Symbol)
		if err != nil {
			a.log.Warn().Err(err).Str("user_id", us.UserID).Str("symbol", us.Symbol).Msg("failed to load trade pairs, skipping")
			continue
		}
		for _, pattern := range pairUpTrades(us.UserID, us.Symbol, trades, a.now()) {
			if err := a.patterns.InsertPattern(pattern); err != nil {
				a.log.Warn().Err(err).Str("user_id", us.UserID).Str("symbol", us.Symbol).Msg("failed to insert pattern, skipping")
				continue
			}
			count++
		}
	}
	return count, nil
}

// pairUpTrades matches each BUY with the next unmatched SELL for the same
// symbol in execution order. Trades are assumed already filtered to one
// user/symbol and ordered ascending by ExecutedAt.
func pairUpTrades(userID, symbol string, trades []domain.TradeHistory, now time.Time) []domain.TradePattern {
	var patterns []domain.TradePattern
	var openBuys []domain.TradeHistory

	for i := range trades {
		t := trades[i]
		switch t.Side {
		case domain.SideBuy:
			openBuys = append(openBuys, t)
		case domain.SideSell:
			if len(openBuys) == 0 {
				continue
			}
			patterns = append(patterns, buildPattern(userID, symbol, openBuys[0], t, now))
			openBuys = openBuys[1:]
		}
	}
	return patterns
}

func buildPattern(userID, symbol string, buy, sell domain.TradeHistory, now time.Time) domain.TradePattern {
	profitLossPct := 0.0
	if buy.ExecutedPrice != 0 {
		profitLossPct = (sell.ExecutedPrice - buy.ExecutedPrice) / buy.ExecutedPrice * 100
	}

	patternType := domain.PatternLosing
	if profitLossPct > 0 {
		patternType = domain.PatternWinning
	}

	return domain.TradePattern{
		ID:              uuid.NewString(),
		UserID:          userID,
		Symbol:          symbol,
		PatternType:     patternType,
		EntrySignal:     buy.SignalRatio,
		HoldingDuration: sell.ExecutedAt.Sub(buy.ExecutedAt),
		ProfitLossPct:   profitLossPct,
		MarketRegime:    string(signal.Interpret(buy.SignalRatio)),
		CreatedAt:       now,
	}
}
