package learning

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sentinel/internal/domain"
)

// defaultBuyThreshold, defaultSellThreshold, defaultStopLossPct seed a
// fresh strategy with no training data, so callers always get a non-null
// active strategy (spec §4.11's "insufficient data" clause).
const (
	defaultBuyThreshold  = 71
	defaultSellThreshold = 30
	defaultStopLossPct   = 5.0

	// stopLossPercentile is the percentile of losing-pattern losses used to
	// derive a conservative stop-loss: triggering before most historical
	// losing trades reached their worst drawdown.
	stopLossPercentile = 0.25
)

// StrategyStore reads and writes versioned strategies. Satisfied by
// *database.LearningRepository.
type StrategyStore interface {
	AllPatterns() ([]domain.TradePattern, error)
	ActiveStrategy(name string) (*domain.LearnedStrategy, error)
	InsertStrategy(s domain.LearnedStrategy) error
	ActivateStrategy(id, name string) error
}

// Optimizer derives LearnedStrategy parameter sets from extracted
// TradePattern rows.
type Optimizer struct {
	store     StrategyStore
	log       zerolog.Logger
	now       func() time.Time
	minSample int
}

// NewOptimizer creates a strategy optimizer. minSamples is the minimum
// pattern count required before a data-derived strategy is produced;
// below it, a default strategy is created instead.
func NewOptimizer(store StrategyStore, minSamples int, log zerolog.Logger) *Optimizer {
	if minSamples <= 0 {
		minSamples = 10
	}
	return &Optimizer{
		store:     store,
		log:       log.With().Str("component", "strategy_optimizer").Logger(),
		now:       time.Now,
		minSample: minSamples,
	}
}

// Optimize computes the next version of a named strategy and activates it
// atomically, deactivating whatever version was previously active.
func (o *Optimizer) Optimize(name string) (*domain.LearnedStrategy, error) {
	patterns, err := o.store.AllPatterns()
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	prev, err := o.store.ActiveStrategy(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read active strategy %s: %w", name, err)
	}
	nextVersion := 1
	if prev != nil {
		nextVersion = prev.Version + 1
	}

	var strategy domain.LearnedStrategy
	if len(patterns) < o.minSample {
		strategy = defaultStrategy(name, nextVersion, o.now())
	} else {
		strategy = deriveStrategy(name, nextVersion, patterns, o.now())
	}
	strategy.ID = uuid.NewString()

	if err := o.store.InsertStrategy(strategy); err != nil {
		return nil, fmt.Errorf("failed to insert strategy %s v%d: %w", name, nextVersion, err)
	}
	if err := o.store.ActivateStrategy(strategy.ID, name); err != nil {
		return nil, fmt.Errorf("failed to activate strategy %s v%d: %w", name, nextVersion, err)
	}
	return &strategy, nil
}

// defaultStrategy is the zero-training-data fallback: spec's thresholds
// mirror the live engine's own sensible defaults (see domain model docs),
// not a derivation from patterns.
func defaultStrategy(name string, version int, now time.Time) domain.LearnedStrategy {
	return domain.LearnedStrategy{
		Name:            name,
		Version:         version,
		BuyThreshold:    defaultBuyThreshold,
		SellThreshold:   defaultSellThreshold,
		StopLossPct:     defaultStopLossPct,
		RiskLevel:       domain.RiskMedium,
		TrainingSamples: 0,
		CreatedAt:       now,
	}
}

// deriveStrategy computes a data-driven parameter set: buy threshold is
// the median entry signal of winning patterns, sell threshold is the
// median entry signal of losing patterns, and stop-loss is a conservative
// percentile of losing-pattern losses — per spec §4.11's derivation rules.
func deriveStrategy(name string, version int, patterns []domain.TradePattern, now time.Time) domain.LearnedStrategy {
	var winning, losing []domain.TradePattern
	for _, p := range patterns {
		if p.PatternType == domain.PatternWinning {
			winning = append(winning, p)
		} else {
			losing = append(losing, p)
		}
	}

	winRate := 0.0
	if len(patterns) > 0 {
		winRate = float64(len(winning)) / float64(len(patterns)) * 100
	}

	buyThreshold := defaultBuyThreshold
	if len(winning) > 0 {
		buyThreshold = int(median(entrySignals(winning)))
	}
	sellThreshold := defaultSellThreshold
	if len(losing) > 0 {
		sellThreshold = int(median(entrySignals(losing)))
	}
	stopLossPct := defaultStopLossPct
	if len(losing) > 0 {
		stopLossPct = math.Abs(conservativeLossPercentile(losing))
	}

	return domain.LearnedStrategy{
		Name:            name,
		Version:         version,
		BuyThreshold:    buyThreshold,
		SellThreshold:   sellThreshold,
		StopLossPct:     stopLossPct,
		RiskLevel:       domain.RiskMedium,
		TrainingSamples: len(patterns),
		WinRate:         winRate,
		ProfitFactor:    profitFactor(winning, losing),
	}
}

func entrySignals(patterns []domain.TradePattern) []float64 {
	out := make([]float64, len(patterns))
	for i, p := range patterns {
		out[i] = float64(p.EntrySignal)
	}
	sort.Float64s(out)
	return out
}

func median(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// conservativeLossPercentile returns the stopLossPercentile quantile of
// losing patterns' profit_loss_pct, which is a negative number: most
// losing trades lost less than this, so triggering a stop here cuts off
// the tail before it gets worse.
func conservativeLossPercentile(losing []domain.TradePattern) float64 {
	losses := make([]float64, len(losing))
	for i, p := range losing {
		losses[i] = p.ProfitLossPct
	}
	sort.Float64s(losses)
	return stat.Quantile(stopLossPercentile, stat.Empirical, losses, nil)
}

func profitFactor(winning, losing []domain.TradePattern) float64 {
	grossProfit := 0.0
	for _, p := range winning {
		grossProfit += p.ProfitLossPct
	}
	grossLoss := 0.0
	for _, p := range losing {
		grossLoss += p.ProfitLossPct
	}
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return grossProfit
	}
	return grossProfit / math.Abs(grossLoss)
}
