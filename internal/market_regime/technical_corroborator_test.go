package market_regime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

type fakePriceSeries struct {
	series []domain.StockPrice
	err    error
}

func (f *fakePriceSeries) Series(symbol string, from, to time.Time) ([]domain.StockPrice, error) {
	return f.series, f.err
}

func mkSeries(start time.Time, n int, priceFn func(i int) float64) []domain.StockPrice {
	out := make([]domain.StockPrice, n)
	for i := 0; i < n; i++ {
		price := priceFn(i)
		out[i] = domain.StockPrice{
			Symbol:    "AAPL",
			Last:      price,
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Timestamp: start.AddDate(0, 0, i),
		}
	}
	return out
}

func TestCorroborateReturnsZeroReportOnInsufficientHistory(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	store := &fakePriceSeries{series: mkSeries(now.AddDate(0, 0, -5), 5, func(i int) float64 { return 100 })}
	c := NewTechnicalCorroborator(store, zerolog.Nop())

	report, err := c.Corroborate("AAPL", now)
	require.NoError(t, err)
	assert.False(t, report.AbnormalByATR)
	assert.Zero(t, report.ATR)
}

func TestCorroborateFlagsAbnormalOnATRSpike(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	start := now.AddDate(0, 0, -60)
	quiet := mkSeries(start, 55, func(i int) float64 { return 100 + float64(i%3)*0.05 })
	spike := mkSeries(start.AddDate(0, 0, 55), 5, func(i int) float64 { return 100 + float64(i)*15 })
	store := &fakePriceSeries{series: append(quiet, spike...)}
	c := NewTechnicalCorroborator(store, zerolog.Nop())

	report, err := c.Corroborate("AAPL", now)
	require.NoError(t, err)
	assert.True(t, report.AbnormalByATR)
	assert.Greater(t, report.ATRZScore, atrZScoreAbnormal)
}

func TestCorroboratePropagatesStoreError(t *testing.T) {
	store := &fakePriceSeries{err: assertErr{}}
	c := NewTechnicalCorroborator(store, zerolog.Nop())

	_, err := c.Corroborate("AAPL", time.Now())
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
