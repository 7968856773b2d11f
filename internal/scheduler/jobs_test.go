package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/engine"
	"github.com/aristath/sentinel/internal/signal"
)

type fakePriceSource struct {
	prices map[string]domain.StockPrice
	calls  []string
}

func (f *fakePriceSource) GetStockPrice(symbol string) (domain.StockPrice, error) {
	f.calls = append(f.calls, symbol)
	p, ok := f.prices[symbol]
	if !ok {
		return domain.StockPrice{}, assertError("no quote")
	}
	return p, nil
}

type fakePriceSink struct {
	recorded []domain.StockPrice
}

func (f *fakePriceSink) Record(p domain.StockPrice) error {
	f.recorded = append(f.recorded, p)
	return nil
}

type fakeHeldSymbols struct {
	symbols []string
}

func (f *fakeHeldSymbols) AllSymbols() ([]string, error) { return f.symbols, nil }

func TestPricePollJobDedupesHeldAndWatchlistSymbols(t *testing.T) {
	source := &fakePriceSource{prices: map[string]domain.StockPrice{
		"AAPL": {Symbol: "AAPL", Last: 100},
		"MSFT": {Symbol: "MSFT", Last: 200},
	}}
	sink := &fakePriceSink{}
	held := &fakeHeldSymbols{symbols: []string{"AAPL"}}

	job := NewPricePollJob(source, sink, held, []string{"AAPL", "MSFT"}, zerolog.Nop())
	err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, source.calls, 2)
	assert.Len(t, sink.recorded, 2)
}

func TestPricePollJobSkipsSymbolOnQuoteFailureWithoutAborting(t *testing.T) {
	source := &fakePriceSource{prices: map[string]domain.StockPrice{"AAPL": {Symbol: "AAPL", Last: 100}}}
	sink := &fakePriceSink{}
	held := &fakeHeldSymbols{symbols: []string{"AAPL", "BROKEN"}}

	job := NewPricePollJob(source, sink, held, nil, zerolog.Nop())
	err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.recorded, 1)
}

type fakeSweeper struct {
	removed int64
	err     error
}

func (f *fakeSweeper) Sweep() (int64, error) { return f.removed, f.err }

func TestCacheSweepJobReportsRemovedCount(t *testing.T) {
	job := NewCacheSweepJob(&fakeSweeper{removed: 7}, zerolog.Nop())
	err := job.Run(context.Background())
	require.NoError(t, err)
}

func TestCacheSweepJobPropagatesError(t *testing.T) {
	job := NewCacheSweepJob(&fakeSweeper{err: assertError("disk full")}, zerolog.Nop())
	err := job.Run(context.Background())
	assert.Error(t, err)
}

type fakeEnabledConfigs struct {
	configs []domain.AutoTradeConfig
}

func (f *fakeEnabledConfigs) Enabled() ([]domain.AutoTradeConfig, error) { return f.configs, nil }

type fakeHoldingsForMonitor struct {
	holdings map[string]domain.AccountHolding
}

func (f *fakeHoldingsForMonitor) Get(userID, symbol string) (*domain.AccountHolding, error) {
	h, ok := f.holdings[symbol]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (f *fakeHoldingsForMonitor) All(userID string) ([]domain.AccountHolding, error) {
	out := make([]domain.AccountHolding, 0, len(f.holdings))
	for _, h := range f.holdings {
		out = append(out, h)
	}
	return out, nil
}

func TestPositionMonitorJobSweepsEveryEnabledUser(t *testing.T) {
	configs := &fakeEnabledConfigs{configs: []domain.AutoTradeConfig{
		{UserID: "u1", Enabled: true, StopLossPct: 5},
		{UserID: "u2", Enabled: true, StopLossPct: 5},
	}}
	registry := engine.NewRegistry(func(userID string) *engine.Engine {
		return engine.New(userID, nil, &fakeHoldingsForMonitor{holdings: map[string]domain.AccountHolding{}}, nil, nil, nil, zerolog.Nop())
	})

	job := NewPositionMonitorJob(registry, configs, zerolog.Nop())
	err := job.Run(context.Background())
	require.NoError(t, err)
}

type fakeSentimentStore struct {
	rows []domain.SentimentAnalysis
}

func (f *fakeSentimentStore) InWindow(from, to time.Time) ([]domain.SentimentAnalysis, error) {
	return f.rows, nil
}

type fakeVIXSource struct{}

func (fakeVIXSource) CurrentVIX(ctx context.Context) (float64, error) { return 20, nil }

func TestSignalProcessingJobRunsWithoutErrorForEnabledConfigAndWatchlist(t *testing.T) {
	generator := signal.New(&fakeSentimentStore{}, fakeVIXSource{}, signal.DefaultConfig(), zerolog.Nop())
	configs := &fakeEnabledConfigs{configs: []domain.AutoTradeConfig{
		{UserID: "u1", Enabled: true, BuyThreshold: 71, SellThreshold: 30},
	}}
	registry := engine.NewRegistry(func(userID string) *engine.Engine {
		return engine.New(userID, nil, &fakeHoldingsForMonitor{holdings: map[string]domain.AccountHolding{}}, nil, nil, nil, zerolog.Nop())
	})

	job := NewSignalProcessingJob(generator, registry, configs, []string{"AAPL", "MSFT"}, nil, nil, nil, zerolog.Nop())
	err := job.Run(context.Background())
	require.NoError(t, err)
}

type fakeAlertPublisher struct {
	criticals []string
}

func (f *fakeAlertPublisher) Critical(title, message string) {
	f.criticals = append(f.criticals, title+": "+message)
}

type highVIXSource struct{}

func (highVIXSource) CurrentVIX(ctx context.Context) (float64, error) { return 45, nil }

func TestSignalProcessingJobRaisesCriticalAlertWhenVIXAbnormal(t *testing.T) {
	generator := signal.New(&fakeSentimentStore{}, highVIXSource{}, signal.DefaultConfig(), zerolog.Nop())
	configs := &fakeEnabledConfigs{configs: []domain.AutoTradeConfig{}}
	registry := engine.NewRegistry(func(userID string) *engine.Engine {
		return engine.New(userID, nil, &fakeHoldingsForMonitor{holdings: map[string]domain.AccountHolding{}}, nil, nil, nil, zerolog.Nop())
	})
	alerts := &fakeAlertPublisher{}

	job := NewSignalProcessingJob(generator, registry, configs, []string{"AAPL"}, highVIXSource{}, nil, alerts, zerolog.Nop())
	err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts.criticals, 1)
	assert.Contains(t, alerts.criticals[0], "VIX 45.0 > 40")
}

func TestSymbolAllowedRespectsAllowAndExcludeLists(t *testing.T) {
	cfg := domain.AutoTradeConfig{
		AllowedSymbols:  map[string]struct{}{"AAPL": {}},
		ExcludedSymbols: map[string]struct{}{},
	}
	assert.True(t, symbolAllowed(cfg, "AAPL"))
	assert.False(t, symbolAllowed(cfg, "MSFT"))

	cfg = domain.AutoTradeConfig{ExcludedSymbols: map[string]struct{}{"MSFT": {}}}
	assert.True(t, symbolAllowed(cfg, "AAPL"))
	assert.False(t, symbolAllowed(cfg, "MSFT"))
}
