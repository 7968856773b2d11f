package learning

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

type fakeStrategyStore struct {
	patterns        []domain.TradePattern
	active          *domain.LearnedStrategy
	inserted        []domain.LearnedStrategy
	activatedID     string
	activatedName   string
}

func (f *fakeStrategyStore) AllPatterns() ([]domain.TradePattern, error) { return f.patterns, nil }

func (f *fakeStrategyStore) PatternsByType(patternType domain.PatternType) ([]domain.TradePattern, error) {
	var out []domain.TradePattern
	for _, p := range f.patterns {
		if p.PatternType == patternType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStrategyStore) ActiveStrategy(name string) (*domain.LearnedStrategy, error) {
	return f.active, nil
}

func (f *fakeStrategyStore) InsertStrategy(s domain.LearnedStrategy) error {
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeStrategyStore) ActivateStrategy(id, name string) error {
	f.activatedID = id
	f.activatedName = name
	return nil
}

func winPattern(entrySignal int, profitPct float64) domain.TradePattern {
	return domain.TradePattern{PatternType: domain.PatternWinning, EntrySignal: entrySignal, ProfitLossPct: profitPct}
}

func losePattern(entrySignal int, profitPct float64) domain.TradePattern {
	return domain.TradePattern{PatternType: domain.PatternLosing, EntrySignal: entrySignal, ProfitLossPct: profitPct}
}

func TestOptimizeReturnsDefaultStrategyBelowMinSamples(t *testing.T) {
	store := &fakeStrategyStore{patterns: []domain.TradePattern{winPattern(90, 5)}}
	o := NewOptimizer(store, 10, zerolog.Nop())

	strategy, err := o.Optimize("momentum")
	require.NoError(t, err)
	assert.Equal(t, 0, strategy.TrainingSamples)
	assert.Equal(t, defaultBuyThreshold, strategy.BuyThreshold)
	assert.Equal(t, 1, strategy.Version)
	assert.Equal(t, "momentum", store.activatedName)
}

func TestOptimizeDerivesThresholdsFromPatterns(t *testing.T) {
	patterns := []domain.TradePattern{
		winPattern(80, 5), winPattern(85, 8), winPattern(90, 10), winPattern(82, 6), winPattern(88, 7),
		losePattern(60, -3), losePattern(55, -5), losePattern(65, -2), losePattern(58, -4), losePattern(62, -6),
	}
	store := &fakeStrategyStore{patterns: patterns}
	o := NewOptimizer(store, 5, zerolog.Nop())

	strategy, err := o.Optimize("momentum")
	require.NoError(t, err)
	assert.Equal(t, 10, strategy.TrainingSamples)
	assert.Equal(t, 50.0, strategy.WinRate)
	assert.Greater(t, strategy.BuyThreshold, 0)
	assert.Greater(t, strategy.StopLossPct, 0.0)
	assert.Equal(t, domain.RiskMedium, strategy.RiskLevel)
}

func TestOptimizeIncrementsVersionFromPreviousActive(t *testing.T) {
	prev := &domain.LearnedStrategy{ID: "prev-id", Name: "momentum", Version: 3}
	store := &fakeStrategyStore{patterns: nil, active: prev}
	o := NewOptimizer(store, 10, zerolog.Nop())

	strategy, err := o.Optimize("momentum")
	require.NoError(t, err)
	assert.Equal(t, 4, strategy.Version)
}

func TestConservativeLossPercentileIsNegative(t *testing.T) {
	losing := []domain.TradePattern{losePattern(60, -2), losePattern(55, -8), losePattern(65, -4), losePattern(58, -6)}
	pct := conservativeLossPercentile(losing)
	assert.Less(t, pct, 0.0)
}

func TestProfitFactorHandlesZeroLosses(t *testing.T) {
	winning := []domain.TradePattern{winPattern(80, 5)}
	assert.Equal(t, 5.0, profitFactor(winning, nil))
	assert.Equal(t, 0.0, profitFactor(nil, nil))
}
