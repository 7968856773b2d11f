// Package market_regime corroborates VIX-based abnormal-market detection
// (internal/risk.DetectAbnormalMarket) with a second, independent read on
// volatility derived from each symbol's own price history.
package market_regime

import (
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
)

const (
	atrPeriod          = 14
	atrLookback        = 90 * 24 * time.Hour
	bollingerPeriod    = 20
	bollingerStdDevMul = 2.0
	atrZScoreAbnormal  = 3.0
)

// PriceSeries supplies a symbol's OHLC history. Satisfied by
// *database.PriceRepository.
type PriceSeries interface {
	Series(symbol string, from, to time.Time) ([]domain.StockPrice, error)
}

// Report is one symbol's technical read as of a point in time.
type Report struct {
	Symbol         string
	ATR            float64
	ATRZScore      float64
	BollingerWidth float64
	AbnormalByATR  bool
}

// TechnicalCorroborator computes ATR and Bollinger Band width over stored
// price series to enrich VIX-based abnormal-market detection. It never
// replaces risk.DetectAbnormalMarket(vix) — that check alone still
// satisfies the exact "VIX > 40" contract. This is an additional signal
// an alerting caller can AND/OR in.
type TechnicalCorroborator struct {
	prices PriceSeries
	log    zerolog.Logger
}

// NewTechnicalCorroborator wires a price series source into the corroborator.
func NewTechnicalCorroborator(prices PriceSeries, log zerolog.Logger) *TechnicalCorroborator {
	return &TechnicalCorroborator{
		prices: prices,
		log:    log.With().Str("component", "technical_corroborator").Logger(),
	}
}

// Corroborate reports a symbol's ATR/Bollinger read as of asOf. Returns a
// zero Report (Abnormal false) on insufficient history rather than an
// error, since a single illiquid symbol in the watchlist should never
// block the caller's overall signal pipeline.
func (c *TechnicalCorroborator) Corroborate(symbol string, asOf time.Time) (Report, error) {
	from := asOf.Add(-atrLookback)
	series, err := c.prices.Series(symbol, from, asOf)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load price series for %s: %w", symbol, err)
	}
	if len(series) < atrPeriod*2 {
		return Report{Symbol: symbol}, nil
	}

	high := make([]float64, len(series))
	low := make([]float64, len(series))
	closes := make([]float64, len(series))
	for i, p := range series {
		high[i] = p.High
		low[i] = p.Low
		closes[i] = p.Last
	}

	atrSeries := talib.Atr(high, low, closes, atrPeriod)
	// talib leaves the first atrPeriod entries at zero during warmup.
	warm := atrSeries[atrPeriod:]
	if len(warm) < 2 {
		return Report{Symbol: symbol}, nil
	}

	latest := warm[len(warm)-1]
	history := warm[:len(warm)-1]
	mean := stat.Mean(history, nil)
	stddev := stat.StdDev(history, nil)

	var zScore float64
	if stddev > 0 {
		zScore = (latest - mean) / stddev
	}

	report := Report{
		Symbol:        symbol,
		ATR:           latest,
		ATRZScore:     zScore,
		AbnormalByATR: zScore > atrZScoreAbnormal,
	}

	upper, middle, lower := talib.BBands(closes, bollingerPeriod, bollingerStdDevMul, bollingerStdDevMul, 0)
	if n := len(upper); n > 0 && middle[n-1] != 0 {
		report.BollingerWidth = (upper[n-1] - lower[n-1]) / middle[n-1]
	}

	return report, nil
}
