package signal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

type fakeSentimentStore struct {
	rows []domain.SentimentAnalysis
}

func (s *fakeSentimentStore) InWindow(from, to time.Time) ([]domain.SentimentAnalysis, error) {
	return s.rows, nil
}

type fixedVIX struct{ value float64 }

func (f fixedVIX) CurrentVIX(context.Context) (float64, error) { return f.value, nil }

func mkRows(day time.Time, label domain.Sentiment, n int) []domain.SentimentAnalysis {
	rows := make([]domain.SentimentAnalysis, n)
	for i := range rows {
		rows[i] = domain.SentimentAnalysis{AnalyzedAt: day, Label: label}
	}
	return rows
}

func TestAllPositiveInputsYieldStrongBuyRatio(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	var rows []domain.SentimentAnalysis
	for d := 0; d < 7; d++ {
		rows = append(rows, mkRows(now.AddDate(0, 0, -d), domain.SentimentPositive, 3)...)
	}
	gen := New(&fakeSentimentStore{rows: rows}, fixedVIX{20}, DefaultConfig(), zerolog.Nop())

	res, err := gen.Calculate(context.Background(), now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Ratio, 71)
	assert.Equal(t, StrongBuy, res.Interpretation)
}

func TestAllNegativeInputsYieldStrongSellRatio(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	var rows []domain.SentimentAnalysis
	for d := 0; d < 7; d++ {
		rows = append(rows, mkRows(now.AddDate(0, 0, -d), domain.SentimentNegative, 3)...)
	}
	gen := New(&fakeSentimentStore{rows: rows}, fixedVIX{20}, DefaultConfig(), zerolog.Nop())

	res, err := gen.Calculate(context.Background(), now)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Ratio, 30)
	assert.Equal(t, StrongSell, res.Interpretation)
}

func TestAllNeutralInputsYieldRatioNearMidpoint(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	var rows []domain.SentimentAnalysis
	for d := 0; d < 7; d++ {
		rows = append(rows, mkRows(now.AddDate(0, 0, -d), domain.SentimentNeutral, 3)...)
	}
	gen := New(&fakeSentimentStore{rows: rows}, fixedVIX{20}, DefaultConfig(), zerolog.Nop())

	res, err := gen.Calculate(context.Background(), now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Ratio, 40)
	assert.LessOrEqual(t, res.Ratio, 60)
	assert.Equal(t, Neutral, res.Interpretation)
}

func TestHigherVIXDoesNotReduceSignalMagnitude(t *testing.T) {
	lowVIX := NormalizeVIX(10)
	highVIX := NormalizeVIX(40)

	low := WeeklySignal([]float64{1.0, 1.0}, lowVIX)
	high := WeeklySignal([]float64{1.0, 1.0}, highVIX)
	assert.GreaterOrEqual(t, high, low)

	lowNeg := WeeklySignal([]float64{-1.0, -1.0}, lowVIX)
	highNeg := WeeklySignal([]float64{-1.0, -1.0}, highVIX)
	assert.GreaterOrEqual(t, abs(highNeg), abs(lowNeg))
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func TestNoSentimentDataReturnsNeutralFiftyRatio(t *testing.T) {
	gen := New(&fakeSentimentStore{}, fixedVIX{20}, DefaultConfig(), zerolog.Nop())
	res, err := gen.Calculate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 50, res.Ratio)
	assert.Equal(t, Neutral, res.Interpretation)
}

func TestNormalizeToRatioLinearClampsToBounds(t *testing.T) {
	assert.Equal(t, 0, NormalizeToRatio(-100, MethodLinear))
	assert.Equal(t, 100, NormalizeToRatio(100, MethodLinear))
}

func TestNormalizeToRatioSigmoidIsMonotonic(t *testing.T) {
	low := NormalizeToRatio(-10, MethodSigmoid)
	mid := NormalizeToRatio(0, MethodSigmoid)
	high := NormalizeToRatio(10, MethodSigmoid)
	assert.Less(t, low, mid)
	assert.Less(t, mid, high)
}

func TestVIXFallbackUsedWhenSourceIsNil(t *testing.T) {
	gen := New(&fakeSentimentStore{rows: mkRows(time.Now(), domain.SentimentPositive, 1)}, nil, DefaultConfig(), zerolog.Nop())
	res, err := gen.Calculate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, NormalizeVIX(20.0), res.VIXNormalized)
}
